package token

import (
	"strings"
	"testing"

	termerr "github.com/defiterm/defiterm/internal/errors"
)

func TestChain(t *testing.T) {
	s := NewService()

	tests := []struct {
		name      string
		input     string
		wantID    int64
		wantCAIP2 string
		wantCode  termerr.Code
	}{
		{name: "slug", input: "ethereum", wantID: 1, wantCAIP2: "eip155:1"},
		{name: "mainnet alias", input: "mainnet", wantID: 1, wantCAIP2: "eip155:1"},
		{name: "slug case insensitive", input: "Base", wantID: 8453, wantCAIP2: "eip155:8453"},
		{name: "caip2", input: "eip155:42161", wantID: 42161, wantCAIP2: "eip155:42161"},
		{name: "numeric", input: "137", wantID: 137, wantCAIP2: "eip155:137"},
		{name: "unknown numeric passes through", input: "59144", wantID: 59144, wantCAIP2: "eip155:59144"},
		{name: "unknown caip2 passes through", input: "eip155:7777", wantID: 7777, wantCAIP2: "eip155:7777"},
		{name: "unknown slug", input: "solana", wantCode: termerr.CodeUsage},
		{name: "empty", input: "  ", wantCode: termerr.CodeUsage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chain, err := s.Chain(tc.input)
			if tc.wantCode != 0 {
				if !termerr.Is(err, tc.wantCode) {
					t.Fatalf("Chain(%q) = %v, want code %d", tc.input, err, tc.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Chain(%q): %v", tc.input, err)
			}
			if chain.ChainID != tc.wantID || chain.CAIP2 != tc.wantCAIP2 {
				t.Fatalf("Chain(%q) = %+v", tc.input, chain)
			}
		})
	}
}

func TestResolveSymbol(t *testing.T) {
	s := NewService()
	eth, err := s.Chain("ethereum")
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}

	asset, err := s.Resolve(eth, "usdc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if asset.Symbol != "USDC" || asset.Decimals != 6 {
		t.Fatalf("asset = %+v", asset)
	}
	if asset.Address != "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48" {
		t.Fatalf("address = %s", asset.Address)
	}
	if asset.AssetID != "eip155:1/erc20:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48" {
		t.Fatalf("asset id = %s", asset.AssetID)
	}
}

func TestResolveAddress(t *testing.T) {
	s := NewService()
	eth, _ := s.Chain("ethereum")

	// A known address recovers symbol and decimals from the table.
	known, err := s.Resolve(eth, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if known.Symbol != "WETH" || known.Decimals != 18 {
		t.Fatalf("known asset = %+v", known)
	}
	if known.Address != strings.ToLower("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2") {
		t.Fatalf("address not normalized: %s", known.Address)
	}

	// An unknown address still resolves; the caller supplied the ground truth.
	unknown, err := s.Resolve(eth, "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("Resolve unknown address: %v", err)
	}
	if unknown.Symbol != "" || unknown.Address != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("unknown asset = %+v", unknown)
	}
}

func TestResolveNotFound(t *testing.T) {
	s := NewService()
	eth, _ := s.Chain("ethereum")

	if _, err := s.Resolve(eth, "DOGE"); !termerr.Is(err, termerr.CodeNotFound) {
		t.Fatalf("Resolve(DOGE) = %v, want not found", err)
	}
	if _, err := s.Resolve(eth, "  "); !termerr.Is(err, termerr.CodeUsage) {
		t.Fatalf("Resolve(blank) = %v, want usage error", err)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		decimals int
		wantBase string
		wantNorm string
		wantCode termerr.Code
	}{
		{name: "whole", input: "1", decimals: 6, wantBase: "1000000", wantNorm: "1"},
		{name: "fractional", input: "1.5", decimals: 6, wantBase: "1500000", wantNorm: "1.5"},
		{name: "full precision", input: "0.000001", decimals: 6, wantBase: "1", wantNorm: "0.000001"},
		{name: "zero", input: "0.0", decimals: 18, wantBase: "0", wantNorm: "0"},
		{name: "leading zeros normalized", input: "007.50", decimals: 2, wantBase: "750", wantNorm: "7.5"},
		{name: "too much precision", input: "1.1234567", decimals: 6, wantCode: termerr.CodeUsage},
		{name: "negative", input: "-1", decimals: 6, wantCode: termerr.CodeUsage},
		{name: "not a number", input: "one", decimals: 6, wantCode: termerr.CodeUsage},
		{name: "empty", input: " ", decimals: 6, wantCode: termerr.CodeUsage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			base, norm, err := ParseAmount(tc.input, tc.decimals)
			if tc.wantCode != 0 {
				if !termerr.Is(err, tc.wantCode) {
					t.Fatalf("ParseAmount(%q) = %v, want code %d", tc.input, err, tc.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q): %v", tc.input, err)
			}
			if base != tc.wantBase || norm != tc.wantNorm {
				t.Fatalf("ParseAmount(%q) = %q, %q; want %q, %q", tc.input, base, norm, tc.wantBase, tc.wantNorm)
			}
		})
	}
}

func TestFormatDecimal(t *testing.T) {
	tests := []struct {
		base     string
		decimals int
		want     string
	}{
		{"1000000", 6, "1"},
		{"1500000", 6, "1.5"},
		{"1", 6, "0.000001"},
		{"0", 18, "0"},
		{"123", 0, "123"},
		{"not-a-number", 6, "not-a-number"},
	}
	for _, tc := range tests {
		if got := FormatDecimal(tc.base, tc.decimals); got != tc.want {
			t.Fatalf("FormatDecimal(%q, %d) = %q, want %q", tc.base, tc.decimals, got, tc.want)
		}
	}
}
