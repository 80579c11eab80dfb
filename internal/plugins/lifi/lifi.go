// Package lifi is the bundled LI.FI bridge plugin. It contributes the "lifi"
// fiber with a cross-chain bridge quoting command; quotes that carry a
// transaction request surface it so the wallet collaborator can take over.
package lifi

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defiterm/defiterm/internal/command"
	termerr "github.com/defiterm/defiterm/internal/errors"
	"github.com/defiterm/defiterm/internal/fiber"
	"github.com/defiterm/defiterm/internal/httpx"
	"github.com/defiterm/defiterm/internal/plugin"
	"github.com/defiterm/defiterm/internal/token"
)

const (
	protocolID  = "lifi"
	defaultBase = "https://li.quest/v1"

	// quoteOnlyAddress stands in for the sender when no wallet is connected.
	quoteOnlyAddress = "0x0000000000000000000000000000000000000001"
)

type Plugin struct {
	http    *httpx.Client
	tokens  *token.Service
	baseURL string
	apiKey  string
	now     func() time.Time
}

func New(httpClient *httpx.Client, tokens *token.Service, apiKey string) *Plugin {
	return &Plugin{
		http:    httpClient,
		tokens:  tokens,
		baseURL: defaultBase,
		apiKey:  apiKey,
		now:     time.Now,
	}
}

func (p *Plugin) ID() string   { return protocolID }
func (p *Plugin) Name() string { return "LI.FI" }

func (p *Plugin) DefaultConfig() plugin.Config {
	return plugin.Config{Enabled: true}
}

func (p *Plugin) Initialize(ctx context.Context, cfg plugin.Config) (*fiber.Fiber, error) {
	if base := strings.TrimSpace(cfg.Options["base_url"]); base != "" {
		p.baseURL = strings.TrimRight(base, "/")
	}

	f, err := fiber.New(protocolID, p.Name(), "cross-chain bridge quoting via LI.FI")
	if err != nil {
		return nil, err
	}
	err = f.AddCommand(command.Command{
		ID:          "bridge",
		Scope:       command.ScopeProtocolScoped,
		Protocol:    protocolID,
		Aliases:     []string{"br"},
		Description: "quote a bridge: bridge <from-chain> <to-chain> <token> <amount>",
		Action:      p.bridgeAction,
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// HealthCheck probes the public chains endpoint.
func (p *Plugin) HealthCheck(ctx context.Context) error {
	var resp struct {
		Chains []struct {
			ID int64 `json:"id"`
		} `json:"chains"`
	}
	if err := p.http.GetJSON(ctx, p.baseURL+"/chains", p.headers(), &resp); err != nil {
		return err
	}
	if len(resp.Chains) == 0 {
		return termerr.New(termerr.CodeUnavailable, "lifi chains endpoint returned no chains")
	}
	return nil
}

type quoteResponse struct {
	Estimate struct {
		ToAmount string `json:"toAmount"`
		GasCosts []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"gasCosts"`
	} `json:"estimate"`
	ToolDetails struct {
		Name string `json:"name"`
	} `json:"toolDetails"`
	TransactionRequest struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		ChainID  int64  `json:"chainId"`
		GasLimit string `json:"gasLimit"`
	} `json:"transactionRequest"`
}

func (p *Plugin) bridgeAction(ctx context.Context, sess command.Session, args []string) (command.Result, error) {
	if len(args) != 4 {
		return command.Result{}, termerr.New(termerr.CodeUsage, "usage: bridge <from-chain> <to-chain> <token> <amount>")
	}

	fromChain, err := p.tokens.Chain(args[0])
	if err != nil {
		return command.Result{}, err
	}
	toChain, err := p.tokens.Chain(args[1])
	if err != nil {
		return command.Result{}, err
	}
	fromAsset, err := p.tokens.Resolve(fromChain, args[2])
	if err != nil {
		return command.Result{}, err
	}
	toAsset, err := p.tokens.Resolve(toChain, args[2])
	if err != nil {
		return command.Result{}, err
	}
	amountBase, amountDecimal, err := token.ParseAmount(args[3], fromAsset.Decimals)
	if err != nil {
		return command.Result{}, err
	}

	sender := quoteOnlyAddress
	if wallet := sess.Wallet(); wallet.Connected {
		sender = wallet.Address.Hex()
	}

	vals := url.Values{}
	vals.Set("fromChain", strconv.FormatInt(fromChain.ChainID, 10))
	vals.Set("toChain", strconv.FormatInt(toChain.ChainID, 10))
	vals.Set("fromToken", fromAsset.Address)
	vals.Set("toToken", toAsset.Address)
	vals.Set("fromAmount", amountBase)
	vals.Set("fromAddress", sender)
	vals.Set("slippage", "0.005")

	var resp quoteResponse
	if err := p.http.GetJSON(ctx, p.baseURL+"/quote?"+vals.Encode(), p.headers(), &resp); err != nil {
		return command.Result{}, err
	}
	if resp.Estimate.ToAmount == "" {
		return command.Result{}, termerr.New(termerr.CodeUnavailable, "lifi quote missing output amount")
	}

	// When a connected wallet asked for the quote, LI.FI returns a signable
	// transaction; surface it instead of a plain table.
	if sess.Wallet().Connected && resp.TransactionRequest.To != "" {
		gasFeeUSD := 0.0
		for _, item := range resp.Estimate.GasCosts {
			v, _ := strconv.ParseFloat(item.AmountUSD, 64)
			gasFeeUSD += v
		}
		return command.Transaction(command.TxRequest{
			ChainID:  fromChain.ChainID,
			To:       resp.TransactionRequest.To,
			Value:    parseHexOrDecimal(resp.TransactionRequest.Value),
			Data:     parseHexData(resp.TransactionRequest.Data),
			GasLimit: parseHexOrDecimalUint(resp.TransactionRequest.GasLimit),
			Summary: fmt.Sprintf("bridge %s %s from %s to %s via %s (est. gas $%.2f)",
				amountDecimal, fromAsset.Symbol, fromChain.Slug, toChain.Slug, resp.ToolDetails.Name, gasFeeUSD),
		}), nil
	}

	return command.Table(
		[]string{"from_chain", "to_chain", "token", "amount_in", "amount_out", "route"},
		[][]string{{
			fromChain.Slug,
			toChain.Slug,
			fromAsset.Symbol,
			amountDecimal,
			token.FormatDecimal(resp.Estimate.ToAmount, toAsset.Decimals),
			resp.ToolDetails.Name,
		}},
	), nil
}

func (p *Plugin) headers() map[string]string {
	if p.apiKey == "" {
		return nil
	}
	return map[string]string{"x-lifi-api-key": p.apiKey}
}

func parseHexOrDecimal(v string) *big.Int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n := new(big.Int)
	if strings.HasPrefix(v, "0x") {
		if _, ok := n.SetString(strings.TrimPrefix(v, "0x"), 16); !ok {
			return nil
		}
		return n
	}
	if _, ok := n.SetString(v, 10); !ok {
		return nil
	}
	return n
}

func parseHexOrDecimalUint(v string) uint64 {
	n := parseHexOrDecimal(v)
	if n == nil || !n.IsUint64() {
		return 0
	}
	return n.Uint64()
}

func parseHexData(v string) []byte {
	v = strings.TrimSpace(v)
	if v == "" || v == "0x" {
		return nil
	}
	return common.FromHex(v)
}
