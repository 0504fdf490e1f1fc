// Package message implements the fixed-layout bridge message that
// authorities sign off on when relaying a deposit from home to foreign.
//
// Layout (84 bytes total): 20-byte recipient, 32-byte big-endian value,
// 32-byte origin-chain transaction hash.
package message

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
)

// Length is the number of bytes in an encoded Deposit message.
const Length = 84

// Deposit is the canonical artifact each authority signs and the
// destination contract aggregates signatures over.
type Deposit struct {
	Recipient common.Address
	Value     *big.Int
	TxHash    common.Hash
}

// Encode serializes m into the normative 84-byte layout.
func (m Deposit) Encode() []byte {
	out := make([]byte, Length)
	copy(out[0:20], m.Recipient.Bytes())
	value := m.Value
	if value == nil {
		value = new(big.Int)
	}
	value.FillBytes(out[20:52])
	copy(out[52:84], m.TxHash.Bytes())
	return out
}

// Decode parses a 84-byte buffer produced by Encode back into a Deposit.
func Decode(b []byte) (Deposit, error) {
	if len(b) != Length {
		return Deposit{}, fmt.Errorf("message: invalid length %d, want %d", len(b), Length)
	}
	return Deposit{
		Recipient: common.BytesToAddress(b[0:20]),
		Value:     new(big.Int).SetBytes(b[20:52]),
		TxHash:    common.BytesToHash(b[52:84]),
	}, nil
}

// EIP191Hash returns the EIP-191 personal-message hash of the encoded
// message: keccak256("\x19Ethereum Signed Message:\n" || len(msg) || msg).
func EIP191Hash(encoded []byte) common.Hash {
	return common.BytesToHash(accounts.TextHash(encoded))
}

// embeddedGasPriceLength is the size of an optional trailing big-endian
// uint64 gas price some wire variants append after the canonical 84-byte
// layout. Deposit.Encode never produces this; EmbeddedGasPrice lets
// withdraw relay opt into reading one when a peer implementation supplies
// it (spec §4.7, Open Questions: the choice is configurable).
const embeddedGasPriceLength = 8

// EmbeddedGasPrice extracts a caller-embedded gas price (wei) trailing a
// raw message buffer, if present. ok is false for the canonical 84-byte
// layout or any buffer not exactly Length+8 bytes.
func EmbeddedGasPrice(raw []byte) (price uint64, ok bool) {
	if len(raw) != Length+embeddedGasPriceLength {
		return 0, false
	}
	return new(big.Int).SetBytes(raw[Length : Length+embeddedGasPriceLength]).Uint64(), true
}
