// Package token is the symbol lookup collaborator: it maps chain slugs and
// token symbols or addresses to canonical chain ids, addresses and decimals.
// Command actions consume it to turn user-typed symbols into request
// parameters; nothing here talks to the network.
package token

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	termerr "github.com/defiterm/defiterm/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// Chain identifies an EVM network.
type Chain struct {
	Name    string
	Slug    string
	CAIP2   string
	ChainID int64
}

// Token is one resolvable asset on a chain.
type Token struct {
	Symbol   string
	Address  string
	Decimals int
}

// Asset is the canonical resolution result handed to protocol plugins.
type Asset struct {
	ChainID  string
	AssetID  string
	Address  string
	Symbol   string
	Decimals int
}

// Service resolves chains and tokens against a bootstrap table. A production
// deployment would layer a remote token-list refresh on top; the engine only
// depends on the lookup surface.
type Service struct {
	chainBySlug map[string]Chain
	chainByID   map[int64]Chain
	tokens      map[string][]Token
}

// NewService returns a service seeded with Tier-1 EVM chains and their common
// stable/wrapped tokens.
func NewService() *Service {
	s := &Service{
		chainBySlug: map[string]Chain{},
		chainByID:   map[int64]Chain{},
		tokens:      map[string][]Token{},
	}
	chains := []Chain{
		{Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", ChainID: 1},
		{Name: "Base", Slug: "base", CAIP2: "eip155:8453", ChainID: 8453},
		{Name: "Arbitrum", Slug: "arbitrum", CAIP2: "eip155:42161", ChainID: 42161},
		{Name: "Optimism", Slug: "optimism", CAIP2: "eip155:10", ChainID: 10},
		{Name: "Polygon", Slug: "polygon", CAIP2: "eip155:137", ChainID: 137},
		{Name: "BSC", Slug: "bsc", CAIP2: "eip155:56", ChainID: 56},
		{Name: "Avalanche", Slug: "avalanche", CAIP2: "eip155:43114", ChainID: 43114},
	}
	for _, c := range chains {
		s.chainBySlug[c.Slug] = c
		s.chainByID[c.ChainID] = c
	}
	s.chainBySlug["mainnet"] = s.chainBySlug["ethereum"]

	s.tokens = map[string][]Token{
		"eip155:1": {
			{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
			{Symbol: "USDT", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6},
			{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
			{Symbol: "WETH", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18},
		},
		"eip155:8453": {
			{Symbol: "USDC", Address: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", Decimals: 6},
			{Symbol: "DAI", Address: "0x50c5725949a6f0c72e6c4a641f24049a917db0cb", Decimals: 18},
			{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		},
		"eip155:42161": {
			{Symbol: "USDC", Address: "0xaf88d065e77c8cc2239327c5edb3a432268e5831", Decimals: 6},
			{Symbol: "USDT", Address: "0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9", Decimals: 6},
			{Symbol: "DAI", Address: "0xda10009cbd5d07dd0cecc66161fc93d7c9000da1", Decimals: 18},
			{Symbol: "WETH", Address: "0x82af49447d8a07e3bd95bd0d56f35241523fbab1", Decimals: 18},
		},
		"eip155:10": {
			{Symbol: "USDC", Address: "0x7f5c764cbc14f9669b88837ca1490cca17c31607", Decimals: 6},
			{Symbol: "USDT", Address: "0x94b008aa00579c1307b0ef2c499ad98a8ce58e58", Decimals: 6},
			{Symbol: "DAI", Address: "0xda10009cbd5d07dd0cecc66161fc93d7c9000da1", Decimals: 18},
			{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		},
		"eip155:137": {
			{Symbol: "USDC", Address: "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359", Decimals: 6},
			{Symbol: "USDT", Address: "0xc2132d05d31c914a87c6611c10748aeb04b58e8f", Decimals: 6},
			{Symbol: "DAI", Address: "0x8f3cf7ad23cd3cadbd9735aff958023239c6a063", Decimals: 18},
			{Symbol: "WETH", Address: "0x7ceb23fd6bc0add59e62ac25578270cff1b9f619", Decimals: 18},
		},
		"eip155:56": {
			{Symbol: "USDC", Address: "0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d", Decimals: 18},
			{Symbol: "USDT", Address: "0x55d398326f99059ff775485246999027b3197955", Decimals: 18},
			{Symbol: "DAI", Address: "0x1af3f329e8be154074d8769d1ffa4ee058b1dbc3", Decimals: 18},
			{Symbol: "WETH", Address: "0x2170ed0880ac9a755fd29b2688956bd959f933f8", Decimals: 18},
		},
		"eip155:43114": {
			{Symbol: "USDC", Address: "0xb97ef9ef8734c71904d8002f8b6bc66dd9c48a6e", Decimals: 6},
			{Symbol: "USDT", Address: "0x9702230a8ea53601f5cd2dc00fdbc13d4df4a8c7", Decimals: 6},
			{Symbol: "DAI", Address: "0xd586e7f844cea2f87f50152665bcbc2c279d8d70", Decimals: 18},
			{Symbol: "WETH", Address: "0x49d5c2bdffac6ce2bfdb6640f4f80f226bc10bab", Decimals: 18},
		},
	}
	return s
}

// Chain resolves a slug, numeric chain id or CAIP-2 id.
func (s *Service) Chain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, termerr.New(termerr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if chain, ok := s.chainBySlug[norm]; ok {
		return chain, nil
	}

	if eip155ChainPattern.MatchString(norm) {
		parts := strings.Split(norm, ":")
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		if known, ok := s.chainByID[id]; ok {
			return known, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: norm, ChainID: id}, nil
	}

	if id, err := strconv.ParseInt(norm, 10, 64); err == nil {
		if chain, ok := s.chainByID[id]; ok {
			return chain, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: fmt.Sprintf("eip155:%d", id), ChainID: id}, nil
	}

	return Chain{}, termerr.New(termerr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

// Resolve maps a symbol or address to a canonical asset on the given chain.
// Ambiguous symbols require the caller to pass an address instead.
func (s *Service) Resolve(chain Chain, input string) (Asset, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Asset{}, termerr.New(termerr.CodeUsage, "asset is required")
	}

	if evmAddressPattern.MatchString(raw) {
		addr := strings.ToLower(raw)
		found, _ := s.byAddress(chain.CAIP2, addr)
		return Asset{
			ChainID:  chain.CAIP2,
			AssetID:  assetID(chain.CAIP2, addr),
			Address:  addr,
			Symbol:   found.Symbol,
			Decimals: found.Decimals,
		}, nil
	}

	matches := s.bySymbol(chain.CAIP2, raw)
	if len(matches) == 0 {
		return Asset{}, termerr.New(termerr.CodeNotFound,
			fmt.Sprintf("symbol %s not found for chain %s", input, chain.CAIP2))
	}
	if len(matches) > 1 {
		addresses := make([]string, 0, len(matches))
		for _, m := range matches {
			addresses = append(addresses, m.Address)
		}
		sort.Strings(addresses)
		return Asset{}, termerr.New(termerr.CodeAmbiguous,
			fmt.Sprintf("symbol %s is ambiguous on chain %s, use an address (%s)", input, chain.CAIP2, strings.Join(addresses, ", ")))
	}
	t := matches[0]
	return Asset{
		ChainID:  chain.CAIP2,
		AssetID:  assetID(chain.CAIP2, t.Address),
		Address:  t.Address,
		Symbol:   strings.ToUpper(t.Symbol),
		Decimals: t.Decimals,
	}, nil
}

func (s *Service) byAddress(chainID, address string) (Token, bool) {
	for _, t := range s.tokens[chainID] {
		if strings.EqualFold(t.Address, address) {
			return t, true
		}
	}
	return Token{}, false
}

func (s *Service) bySymbol(chainID, symbol string) []Token {
	matches := []Token{}
	for _, t := range s.tokens[chainID] {
		if strings.EqualFold(t.Symbol, symbol) {
			matches = append(matches, t)
		}
	}
	return matches
}

func assetID(chainID, address string) string {
	return fmt.Sprintf("%s/erc20:%s", chainID, strings.ToLower(strings.TrimSpace(address)))
}
