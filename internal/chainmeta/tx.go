package chainmeta

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// UnsignedCall is everything the nonce-managed submitter knows about a
// transaction before it acquires a nonce and signs it (spec §4.9).
type UnsignedCall struct {
	To       common.Address
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Data     []byte
}

// PrepareRawTransaction builds a legacy transaction from nonce+call,
// signs it EIP-155-aware via signer, and RLP-encodes the result the way
// original_source/bridge/src/transaction.rs's prepare_raw_transaction does.
// It returns the opaque raw bytes ready for eth_sendRawTransaction and the
// transaction hash the caller can use as a synthetic receipt key.
func PrepareRawTransaction(nonce uint64, call UnsignedCall, chainID *big.Int, signer TxSigner) ([]byte, common.Hash, error) {
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTransaction(nonce, call.To, value, call.Gas, call.GasPrice, call.Data)

	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("chainmeta: sign transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("chainmeta: rlp-encode transaction: %w", err)
	}
	return raw, signed.Hash(), nil
}
