// Package contracts wraps the home and foreign bridge contract ABIs. The
// Solidity sources are an external input (spec §1); this package only
// knows the function/event signatures needed to build filters, decode
// logs, and encode calls, the way geth-08-abigen and geth-17-indexer bind
// a runtime ABI without a generated Go type.
package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const homeABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":false,"name":"recipient","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Deposit","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":false,"name":"required_signatures","type":"uint256"}],"name":"RequiredSignaturesChanged","type":"event"},
	{"constant":false,"inputs":[{"name":"signature","type":"bytes"},{"name":"message","type":"bytes"}],"name":"submitSignature","outputs":[],"type":"function"},
	{"constant":false,"inputs":[{"name":"vs","type":"uint8[]"},{"name":"rs","type":"bytes32[]"},{"name":"ss","type":"bytes32[]"},{"name":"message","type":"bytes"}],"name":"withdraw","outputs":[],"type":"function"},
	{"constant":true,"inputs":[],"name":"requiredSignatures","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// Home binds HomeBridge.sol's function and event set.
type Home struct {
	abi abi.ABI
}

// NewHome parses the home bridge ABI once at startup.
func NewHome() (*Home, error) {
	parsed, err := abi.JSON(strings.NewReader(homeABIJSON))
	if err != nil {
		return nil, fmt.Errorf("contracts: parse home ABI: %w", err)
	}
	return &Home{abi: parsed}, nil
}

// DepositTopic is the keccak256 signature hash of the Deposit event, used
// to build the deposit-relay and deposit-confirm log filters.
func (h *Home) DepositTopic() common.Hash {
	return h.abi.Events["Deposit"].ID
}

// RequiredSignaturesChangedTopic lets a log stream notice a change in the
// signature threshold mid-stream (spec §4.7).
func (h *Home) RequiredSignaturesChangedTopic() common.Hash {
	return h.abi.Events["RequiredSignaturesChanged"].ID
}

// DepositEvent is the decoded form of a Home.Deposit log.
type DepositEvent struct {
	Recipient common.Address
	Value     *big.Int
}

// ParseDeposit decodes a raw log's data into a DepositEvent. Deposit is
// not indexed on either field (spec S2), so both live in log.Data.
func (h *Home) ParseDeposit(log types.Log) (DepositEvent, error) {
	var ev DepositEvent
	if err := h.abi.UnpackIntoInterface(&ev, "Deposit", log.Data); err != nil {
		return DepositEvent{}, fmt.Errorf("contracts: unpack Deposit: %w", err)
	}
	return ev, nil
}

// PackSubmitSignature encodes a call to submitSignature(signature, message),
// one authority's vote toward a withdraw's signature threshold on home.
func (h *Home) PackSubmitSignature(signature, message []byte) ([]byte, error) {
	return h.abi.Pack("submitSignature", signature, message)
}

// PackWithdraw encodes a call to withdraw(v[], r[], s[], message), the
// call that executes a confirmed withdrawal on the home chain.
func (h *Home) PackWithdraw(vs []uint8, rs, ss [][32]byte, message []byte) ([]byte, error) {
	return h.abi.Pack("withdraw", vs, rs, ss, message)
}

// UnpackRequiredSignatures decodes requiredSignatures()'s uint256 result.
func (h *Home) UnpackRequiredSignatures(data []byte) (uint32, error) {
	out, err := h.abi.Unpack("requiredSignatures", data)
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
