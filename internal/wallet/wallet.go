// Package wallet is the signing capability consumed by the engine. The engine
// only reads connection snapshots and forwards transaction requests; signing
// and broadcasting stay behind these interfaces.
package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/defiterm/defiterm/internal/command"
)

// Signer signs transactions for one address.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

// Broadcaster submits a signed transaction and returns its hash.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error)
}

// Disconnected returns the snapshot for a session with no wallet attached.
func Disconnected() command.WalletSnapshot {
	return command.WalletSnapshot{}
}

// Connected returns the snapshot for an attached wallet.
func Connected(address common.Address, chainID int64) command.WalletSnapshot {
	return command.WalletSnapshot{
		Address:   address,
		ChainID:   chainID,
		Connected: true,
	}
}
