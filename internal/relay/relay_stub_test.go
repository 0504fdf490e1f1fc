package relay

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// packEventData encodes a sequence of non-indexed event fields the same
// way the ABI does for the "address"/"uint256"/"bytes32" kinds used across
// the relay fixtures, matching contracts_test.go's hand-built log data.
func packEventData(t *testing.T, kinds []string, values ...interface{}) []byte {
	t.Helper()
	var out []byte
	for i, k := range kinds {
		switch k {
		case "address":
			addr, ok := values[i].(common.Address)
			if !ok {
				t.Fatalf("value %d: want common.Address for kind %q", i, k)
			}
			out = append(out, common.LeftPadBytes(addr.Bytes(), 32)...)
		case "uint256":
			v, ok := values[i].(*big.Int)
			if !ok {
				t.Fatalf("value %d: want *big.Int for kind %q", i, k)
			}
			out = append(out, common.LeftPadBytes(v.Bytes(), 32)...)
		case "bytes32":
			h, ok := values[i].(common.Hash)
			if !ok {
				t.Fatalf("value %d: want common.Hash for kind %q", i, k)
			}
			out = append(out, h.Bytes()...)
		default:
			t.Fatalf("value %d: unsupported kind %q", i, k)
		}
	}
	return out
}

// stubHead reports a fixed, settable chain head for logstream.Stream.
type stubHead struct {
	head uint64
}

func (h *stubHead) BlockNumber(ctx context.Context) (uint64, error) { return h.head, nil }

// stubLogs hands back a canned slice of logs regardless of the filter
// query, enough to exercise one relay Poll call per test.
type stubLogs struct {
	logs []types.Log
}

func (l *stubLogs) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return l.logs, nil
}

// recordingSender accepts every raw transaction and remembers it, standing
// in for eth_sendRawTransaction in relay pipeline tests.
type recordingSender struct {
	sent [][]byte
}

func (s *recordingSender) SendRaw(ctx context.Context, raw []byte) error {
	s.sent = append(s.sent, raw)
	return nil
}

// fixedNoncer is a NodeNoncer that is never expected to be called in a
// happy-path test (no reacquire).
type fixedNoncer struct{ n uint64 }

func (f fixedNoncer) PendingNonceAt(ctx context.Context) (uint64, error) { return f.n, nil }

// directSigner signs with a raw private key, standing in for the keystore
// in relay pipeline tests.
type directSigner struct {
	priv *ecdsa.PrivateKey
}

func (d directSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.NewEIP155Signer(chainID), d.priv)
}

func (d directSigner) SignHash(account common.Address, hash []byte) ([]byte, error) {
	return crypto.Sign(hash, d.priv)
}

func mustKey() *ecdsa.PrivateKey {
	priv, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return priv
}
