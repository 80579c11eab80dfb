package wallet

import (
	"crypto/ecdsa"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	termerr "github.com/defiterm/defiterm/internal/errors"
)

const privateKeyEnv = "DEFITERM_PRIVATE_KEY"

// LocalSigner signs with an in-memory secp256k1 key. Key material never leaves
// the process.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSignerFromEnv loads a hex private key from DEFITERM_PRIVATE_KEY,
// either inline or as a path to a key file.
func NewLocalSignerFromEnv() (*LocalSigner, error) {
	raw := strings.TrimSpace(os.Getenv(privateKeyEnv))
	if raw == "" {
		return nil, termerr.New(termerr.CodeAuth, "no private key: set "+privateKeyEnv)
	}
	if looksLikePath(raw) {
		buf, err := os.ReadFile(raw)
		if err != nil {
			return nil, termerr.Wrap(termerr.CodeAuth, "read key file", err)
		}
		raw = strings.TrimSpace(string(buf))
	}
	return NewLocalSigner(raw)
}

func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, termerr.Wrap(termerr.CodeAuth, "parse private key", err)
	}
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *LocalSigner) Address() common.Address { return s.address }

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, termerr.New(termerr.CodeUsage, "chain id is required for signing")
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, termerr.Wrap(termerr.CodeInternal, "sign transaction", err)
	}
	return signed, nil
}

func looksLikePath(v string) bool {
	return strings.ContainsAny(v, "/\\") || strings.HasSuffix(v, ".key") || strings.HasSuffix(v, ".txt")
}
