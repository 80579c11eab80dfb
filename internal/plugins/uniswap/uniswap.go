// Package uniswap is the bundled Uniswap plugin. It contributes the "uniswap"
// fiber with a single swap quoting command backed by the trade API.
package uniswap

import (
	"context"
	"strings"
	"time"

	"github.com/defiterm/defiterm/internal/command"
	termerr "github.com/defiterm/defiterm/internal/errors"
	"github.com/defiterm/defiterm/internal/fiber"
	"github.com/defiterm/defiterm/internal/httpx"
	"github.com/defiterm/defiterm/internal/plugin"
	"github.com/defiterm/defiterm/internal/token"
)

const (
	protocolID  = "uniswap"
	defaultBase = "https://trade-api.gateway.uniswap.org"

	// quoteOnlySwapper is a deterministic placeholder for quote retrieval flows.
	quoteOnlySwapper = "0x0000000000000000000000000000000000000001"
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
func (p *Plugin) Name() string { return "Uniswap" }

func (p *Plugin) DefaultConfig() plugin.Config {
	return plugin.Config{Enabled: true}
}

func (p *Plugin) Initialize(ctx context.Context, cfg plugin.Config) (*fiber.Fiber, error) {
	if base := strings.TrimSpace(cfg.Options["base_url"]); base != "" {
		p.baseURL = strings.TrimRight(base, "/")
	}

	f, err := fiber.New(protocolID, p.Name(), "swap quoting via the Uniswap trade API")
	if err != nil {
		return nil, err
	}
	err = f.AddCommand(command.Command{
		ID:          "swap",
		Scope:       command.ScopeProtocolScoped,
		Protocol:    protocolID,
		Aliases:     []string{"sw"},
		Description: "quote a swap: swap <chain> <from> <to> <amount>",
		Action:      p.swapAction,
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

type quoteResponse struct {
	Quote struct {
		Output struct {
			Amount string `json:"amount"`
		} `json:"output"`
	} `json:"quote"`
	AmountOut string `json:"amountOut"`
}

func (p *Plugin) swapAction(ctx context.Context, sess command.Session, args []string) (command.Result, error) {
	if len(args) != 4 {
		return command.Result{}, termerr.New(termerr.CodeUsage, "usage: swap <chain> <from> <to> <amount>")
	}
	if p.apiKey == "" {
		return command.Result{}, termerr.New(termerr.CodeAuth, "missing required API key for uniswap (DEFITERM_UNISWAP_API_KEY)")
	}

	chain, err := p.tokens.Chain(args[0])
	if err != nil {
		return command.Result{}, err
	}
	from, err := p.tokens.Resolve(chain, args[1])
	if err != nil {
		return command.Result{}, err
	}
	to, err := p.tokens.Resolve(chain, args[2])
	if err != nil {
		return command.Result{}, err
	}
	amountBase, amountDecimal, err := token.ParseAmount(args[3], from.Decimals)
	if err != nil {
		return command.Result{}, err
	}

	payload := map[string]any{
		"tokenInChainId":  chain.ChainID,
		"tokenOutChainId": chain.ChainID,
		"tokenIn":         from.Address,
		"tokenOut":        to.Address,
		"amount":          amountBase,
		"type":            "EXACT_INPUT",
		"swapper":         quoteOnlySwapper,
		"autoSlippage":    "DEFAULT",
	}
	headers := map[string]string{"x-api-key": p.apiKey}

	var resp quoteResponse
	if err := p.http.PostJSON(ctx, p.baseURL+"/v1/quote", headers, payload, &resp); err != nil {
		return command.Result{}, err
	}
	amountOut := resp.AmountOut
	if amountOut == "" {
		amountOut = resp.Quote.Output.Amount
	}
	if amountOut == "" {
		return command.Result{}, termerr.New(termerr.CodeUnavailable, "uniswap quote missing output amount")
	}

	return command.Table(
		[]string{"chain", "from", "to", "amount_in", "amount_out"},
		[][]string{{
			chain.Slug,
			from.Symbol,
			to.Symbol,
			amountDecimal,
			token.FormatDecimal(amountOut, to.Decimals),
		}},
	), nil
}
