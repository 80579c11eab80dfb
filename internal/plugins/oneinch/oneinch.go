// Package oneinch is the bundled 1inch aggregator plugin. It contributes the
// "1inch" fiber with swap quoting and spot price commands.
package oneinch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
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
	protocolID  = "1inch"
	defaultBase = "https://api.1inch.dev"
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
func (p *Plugin) Name() string { return "1inch Aggregator" }

func (p *Plugin) DefaultConfig() plugin.Config {
	return plugin.Config{Enabled: true}
}

func (p *Plugin) Initialize(ctx context.Context, cfg plugin.Config) (*fiber.Fiber, error) {
	if base := strings.TrimSpace(cfg.Options["base_url"]); base != "" {
		p.baseURL = strings.TrimRight(base, "/")
	}

	f, err := fiber.New(protocolID, p.Name(), "swap quoting and spot prices via the 1inch aggregation API")
	if err != nil {
		return nil, err
	}

	commands := []command.Command{
		{
			ID:          "swap",
			Scope:       command.ScopeProtocolScoped,
			Protocol:    protocolID,
			Aliases:     []string{"sw"},
			Description: "quote a swap: swap <chain> <from> <to> <amount>",
			Action:      p.swapAction,
		},
		{
			ID:          "price",
			Scope:       command.ScopeProtocolScoped,
			Protocol:    protocolID,
			Aliases:     []string{"pr"},
			Description: "spot price in USD: price <chain> <token>",
			Action:      p.priceAction,
		},
	}
	for _, cmd := range commands {
		if err := f.AddCommand(cmd); err != nil {
			return nil, err
		}
	}
	return f, nil
}

type quoteResponse struct {
	DstAmount string  `json:"dstAmount"`
	Gas       float64 `json:"gas"`
}

func (p *Plugin) swapAction(ctx context.Context, sess command.Session, args []string) (command.Result, error) {
	if len(args) != 4 {
		return command.Result{}, termerr.New(termerr.CodeUsage, "usage: swap <chain> <from> <to> <amount>")
	}
	if p.apiKey == "" {
		return command.Result{}, termerr.New(termerr.CodeAuth, "missing required API key for 1inch (DEFITERM_1INCH_API_KEY)")
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

	vals := url.Values{}
	vals.Set("src", from.Address)
	vals.Set("dst", to.Address)
	vals.Set("amount", amountBase)
	vals.Set("includeGas", "true")
	endpoint := fmt.Sprintf("%s/swap/v6.0/%d/quote?%s", p.baseURL, chain.ChainID, vals.Encode())

	var resp quoteResponse
	if err := p.http.GetJSON(ctx, endpoint, p.headers(), &resp); err != nil {
		return command.Result{}, err
	}
	if resp.DstAmount == "" {
		return command.Result{}, termerr.New(termerr.CodeUnavailable, "1inch quote missing destination amount")
	}

	return command.Table(
		[]string{"chain", "from", "to", "amount_in", "amount_out", "gas"},
		[][]string{{
			chain.Slug,
			from.Symbol,
			to.Symbol,
			amountDecimal,
			token.FormatDecimal(resp.DstAmount, to.Decimals),
			strconv.FormatFloat(resp.Gas, 'f', 0, 64),
		}},
	), nil
}

type priceResponse map[string]string

func (p *Plugin) priceAction(ctx context.Context, sess command.Session, args []string) (command.Result, error) {
	if len(args) != 2 {
		return command.Result{}, termerr.New(termerr.CodeUsage, "usage: price <chain> <token>")
	}
	if p.apiKey == "" {
		return command.Result{}, termerr.New(termerr.CodeAuth, "missing required API key for 1inch (DEFITERM_1INCH_API_KEY)")
	}

	chain, err := p.tokens.Chain(args[0])
	if err != nil {
		return command.Result{}, err
	}
	asset, err := p.tokens.Resolve(chain, args[1])
	if err != nil {
		return command.Result{}, err
	}

	endpoint := fmt.Sprintf("%s/price/v1.1/%d/%s?currency=USD", p.baseURL, chain.ChainID, asset.Address)
	var resp priceResponse
	if err := p.http.GetJSON(ctx, endpoint, p.headers(), &resp); err != nil {
		return command.Result{}, err
	}
	price, ok := resp[asset.Address]
	if !ok || price == "" {
		return command.Result{}, termerr.New(termerr.CodeUnavailable, "1inch price missing for "+asset.Symbol)
	}

	return command.Message(fmt.Sprintf("%s on %s: %s USD", asset.Symbol, chain.Slug, price)), nil
}

func (p *Plugin) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}
