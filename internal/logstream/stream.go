// Package logstream produces the lazy, infinite sequence of contiguous
// log batches each relay pipeline polls (spec §3 "Log Batch", §4.1).
package logstream

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Batch is a contiguous, non-overlapping slice of one chain's logs.
type Batch struct {
	From uint64
	To   uint64
	Logs []types.Log
}

// HeadFetcher reports the current chain head.
type HeadFetcher interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// LogFetcher retrieves logs matching a filter query.
type LogFetcher interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Stream polls one (address, topics) filter on one chain. Created with
// after = A, it yields batches whose From is always previous.To+1 (or
// A+1 for the first), whose To never exceeds head-confirmations, and
// whose logs all fall within [From, To] (spec §4.1 contract).
type Stream struct {
	head          HeadFetcher
	logs          LogFetcher
	address       common.Address
	topics        [][]common.Hash
	confirmations uint64
	after         uint64
}

// New creates a stream that will next fetch starting at block after+1.
func New(head HeadFetcher, logs LogFetcher, address common.Address, topics [][]common.Hash, confirmations, after uint64) *Stream {
	return &Stream{head: head, logs: logs, address: address, topics: topics, confirmations: confirmations, after: after}
}

// After reports the last block included in a yielded batch (or the seed
// value if nothing has been yielded yet).
func (s *Stream) After() uint64 { return s.after }

// Poll performs one Wait→FetchHead→FetchLogs→Yield cycle. It returns
// (nil, nil) when there is nothing new yet (head - confirmations <=
// after): the caller should return to Wait and try again on the next
// tick. Request timeouts and RPC errors surface as an error and leave
// the stream's internal cursor untouched, so the same range is retried
// next poll.
func (s *Stream) Poll(ctx context.Context) (*Batch, error) {
	head, err := s.head.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("logstream: fetch head: %w", err)
	}

	if head < s.confirmations {
		return nil, nil
	}
	safeHead := head - s.confirmations
	if safeHead <= s.after {
		return nil, nil
	}

	from := s.after + 1
	to := safeHead

	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.address},
		Topics:    s.topics,
	}

	logs, err := s.logs.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("logstream: fetch logs [%d,%d]: %w", from, to, err)
	}

	s.after = to
	return &Batch{From: from, To: to, Logs: logs}, nil
}
