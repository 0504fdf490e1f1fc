// Package relay implements the three log-driven relay state machines of
// spec §4.5-§4.7: deposit relay, deposit/withdraw confirm, and withdraw
// relay. Each composes a log stream, the balance and gas-price cells, and
// the nonce-managed submitter into one polling pipeline.
package relay

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/semaphore"
)

// hashCollector gathers destination transaction hashes across the
// concurrent submissions of one batch, guarded by a mutex since submit
// callbacks run on separate goroutines (spec §5 "no cell lock is ever
// held across an await" — this is a plain slice append, not a cell).
// internal/audit's ledger uses the collected hashes to log one row per
// submitted transaction.
type hashCollector struct {
	mu     sync.Mutex
	hashes []common.Hash
}

func (h *hashCollector) add(hash common.Hash) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hashes = append(h.hashes, hash)
}

func (h *hashCollector) drain() []common.Hash {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.hashes
	h.hashes = nil
	return out
}

// submitAll runs submit(i) for i in [0,n) with at most concurrency in
// flight at once, matching spec §5's "bounded-concurrency fan-out with
// back-pressure" requirement. It waits for every submission that was
// launched and returns the first error encountered, if any.
func submitAll(ctx context.Context, concurrency int64, n int, submit func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(concurrency)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	recordErr := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			recordErr(err)
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			recordErr(submit(ctx, i))
		}(i)
	}

	wg.Wait()
	return firstErr
}
