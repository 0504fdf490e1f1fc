package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const foreignABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":false,"name":"recipient","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Deposit","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":false,"name":"authority_responsible_for_relay","type":"address"},{"indexed":false,"name":"message_hash","type":"bytes32"}],"name":"CollectedSignatures","type":"event"},
	{"constant":false,"inputs":[{"name":"recipient","type":"address"},{"name":"value","type":"uint256"},{"name":"transactionHash","type":"bytes32"}],"name":"deposit","outputs":[],"type":"function"},
	{"constant":false,"inputs":[{"name":"signature","type":"bytes"},{"name":"message","type":"bytes"}],"name":"submitSignature","outputs":[],"type":"function"},
	{"constant":true,"inputs":[{"name":"hash","type":"bytes32"}],"name":"message","outputs":[{"name":"","type":"bytes"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"hash","type":"bytes32"},{"name":"index","type":"uint256"}],"name":"signature","outputs":[{"name":"","type":"bytes"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"requiredSignatures","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// Foreign binds ForeignBridge.sol's function and event set: the side that
// mints on deposit and collects withdraw signatures.
type Foreign struct {
	abi abi.ABI
}

// NewForeign parses the foreign bridge ABI once at startup.
func NewForeign() (*Foreign, error) {
	parsed, err := abi.JSON(strings.NewReader(foreignABIJSON))
	if err != nil {
		return nil, fmt.Errorf("contracts: parse foreign ABI: %w", err)
	}
	return &Foreign{abi: parsed}, nil
}

// DepositTopic is used by withdraw-confirm to watch for a foreign Deposit
// (withdraw-intent burn) event, mirroring Home.DepositTopic.
func (f *Foreign) DepositTopic() common.Hash {
	return f.abi.Events["Deposit"].ID
}

// ParseDeposit decodes a raw log's data into a DepositEvent.
func (f *Foreign) ParseDeposit(log types.Log) (DepositEvent, error) {
	var ev DepositEvent
	if err := f.abi.UnpackIntoInterface(&ev, "Deposit", log.Data); err != nil {
		return DepositEvent{}, fmt.Errorf("contracts: unpack Deposit: %w", err)
	}
	return ev, nil
}

// CollectedSignaturesTopic builds the withdraw-relay log filter.
func (f *Foreign) CollectedSignaturesTopic() common.Hash {
	return f.abi.Events["CollectedSignatures"].ID
}

// CollectedSignaturesEvent is the decoded form of a CollectedSignatures log.
type CollectedSignaturesEvent struct {
	AuthorityResponsibleForRelay common.Address
	MessageHash                 common.Hash
}

// ParseCollectedSignatures decodes a raw log's data into a
// CollectedSignaturesEvent. Neither field is indexed (mirrors the Deposit
// event's layout on the home side), so both live in log.Data.
func (f *Foreign) ParseCollectedSignatures(log types.Log) (CollectedSignaturesEvent, error) {
	var raw struct {
		AuthorityResponsibleForRelay common.Address
		MessageHash                  [32]byte
	}
	if err := f.abi.UnpackIntoInterface(&raw, "CollectedSignatures", log.Data); err != nil {
		return CollectedSignaturesEvent{}, fmt.Errorf("contracts: unpack CollectedSignatures: %w", err)
	}
	return CollectedSignaturesEvent{
		AuthorityResponsibleForRelay: raw.AuthorityResponsibleForRelay,
		MessageHash:                  raw.MessageHash,
	}, nil
}

// PackDeposit encodes a call to deposit(recipient, value, transactionHash),
// the relay of a home Deposit event onto the foreign chain.
func (f *Foreign) PackDeposit(recipient common.Address, value *big.Int, txHash common.Hash) ([]byte, error) {
	return f.abi.Pack("deposit", recipient, value, txHash)
}

// PackSubmitSignature encodes a call to submitSignature(signature, message),
// one authority's vote toward a withdraw's signature threshold.
func (f *Foreign) PackSubmitSignature(signature, message []byte) ([]byte, error) {
	return f.abi.Pack("submitSignature", signature, message)
}

// PackMessage encodes a call to message(hash), used to fetch the original
// signed payload a CollectedSignatures event refers to.
func (f *Foreign) PackMessage(hash common.Hash) ([]byte, error) {
	return f.abi.Pack("message", hash)
}

// PackSignature encodes a call to signature(hash, index), used to fetch the
// index'th authority signature over a collected message.
func (f *Foreign) PackSignature(hash common.Hash, index uint64) ([]byte, error) {
	return f.abi.Pack("signature", hash, new(big.Int).SetUint64(index))
}

// UnpackBytesResult decodes the return value of message/signature eth_call
// results, both of which return a single `bytes`.
func (f *Foreign) UnpackBytesResult(method string, data []byte) ([]byte, error) {
	out, err := f.abi.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("contracts: unpack %s result: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("contracts: unexpected %s output arity %d", method, len(out))
	}
	b, ok := out[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("contracts: %s output is not bytes", method)
	}
	return b, nil
}

// UnpackRequiredSignatures decodes requiredSignatures()'s uint256 result.
func (f *Foreign) UnpackRequiredSignatures(data []byte) (uint32, error) {
	out, err := f.abi.Unpack("requiredSignatures", data)
	if err != nil {
		return 0, fmt.Errorf("contracts: unpack requiredSignatures: %w", err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("contracts: unexpected requiredSignatures output arity %d", len(out))
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("contracts: requiredSignatures output is not uint256")
	}
	return uint32(n.Uint64()), nil
}

// RelayAssignment is a CollectedSignatures event resolved into "it is my
// turn to submit withdraw N to home" when my address matches the event's
// authority_responsible_for_relay, matching the Rust RelayAssignment type.
type RelayAssignment struct {
	MessageHash    common.Hash
	AuthorityIndex uint64
}

// ResolveAssignment returns (assignment, true) when myAddress matches the
// event's relaying authority, otherwise (zero, false). The event carries no
// slot number, so index is stored as AuthorityIndex exactly as the caller
// passes it (WithdrawRelay passes the log's position within its batch).
func ResolveAssignment(ev CollectedSignaturesEvent, myAddress common.Address, index uint64) (RelayAssignment, bool) {
	if ev.AuthorityResponsibleForRelay != myAddress {
		return RelayAssignment{}, false
	}
	return RelayAssignment{MessageHash: ev.MessageHash, AuthorityIndex: index}, true
}
