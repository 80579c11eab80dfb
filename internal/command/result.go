package command

import "math/big"

// ResultKind tags the closed set of result variants the UI switches on.
type ResultKind string

const (
	ResultMessage     ResultKind = "message"
	ResultTable       ResultKind = "table"
	ResultTransaction ResultKind = "transaction_request"
	ResultCleared     ResultKind = "cleared"
)

// TableData is a rendered tabular payload.
type TableData struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// TxRequest describes a transaction the wallet collaborator should sign and
// broadcast. The engine only forwards it; it never validates transaction
// semantics.
type TxRequest struct {
	ChainID  int64    `json:"chain_id"`
	To       string   `json:"to"`
	Value    *big.Int `json:"value,omitempty"`
	Data     []byte   `json:"data,omitempty"`
	GasLimit uint64   `json:"gas_limit,omitempty"`
	Summary  string   `json:"summary,omitempty"`
}

// Result is the tagged union produced by command actions. Exactly one payload
// field matching Kind is set.
type Result struct {
	Kind        ResultKind `json:"kind"`
	Message     string     `json:"message,omitempty"`
	Table       *TableData `json:"table,omitempty"`
	Transaction *TxRequest `json:"transaction,omitempty"`
}

func Message(text string) Result {
	return Result{Kind: ResultMessage, Message: text}
}

func Table(columns []string, rows [][]string) Result {
	return Result{Kind: ResultTable, Table: &TableData{Columns: columns, Rows: rows}}
}

func Transaction(tx TxRequest) Result {
	return Result{Kind: ResultTransaction, Transaction: &tx}
}

func Cleared() Result {
	return Result{Kind: ResultCleared}
}
