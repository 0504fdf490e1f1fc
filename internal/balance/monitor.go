// Package balance implements the per-chain balance cell and its feeder
// (spec §3 "Balance Cell", §4.2).
package balance

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Cell is a process-local, optional balance reading. A nil value means
// "unknown, don't submit yet" (spec §3).
type Cell struct {
	mu    sync.RWMutex
	value *big.Int
}

// NewCell starts a cell in the unknown (nil) state; the supervisor must
// see a successful read before any relay may spend.
func NewCell() *Cell {
	return &Cell{}
}

// Get returns the current balance and whether it is known yet.
func (c *Cell) Get() (*big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil {
		return nil, false
	}
	return new(big.Int).Set(c.value), true
}

func (c *Cell) set(v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
}

// Fetcher retrieves the authority account's pending balance on one chain.
type Fetcher interface {
	PendingBalanceAt(ctx context.Context) (*big.Int, error)
}

// Monitor periodically refreshes Cell from Fetcher. On timeout it yields
// nothing that tick (spec §4.2) — the cell simply keeps its previous
// value, which may still be the unknown state if no read has ever
// succeeded.
type Monitor struct {
	cell    *Cell
	fetcher Fetcher
	chain   string
}

func NewMonitor(cell *Cell, fetcher Fetcher, chain string) *Monitor {
	return &Monitor{cell: cell, fetcher: fetcher, chain: chain}
}

// Tick performs one poll.
func (m *Monitor) Tick(ctx context.Context) {
	v, err := m.fetcher.PendingBalanceAt(ctx)
	if err != nil {
		log.Debug("balance poll failed, keeping previous reading", "chain", m.chain, "err", err)
		return
	}
	m.cell.set(v)
}

// Run polls Tick at interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}
