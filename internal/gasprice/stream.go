// Package gasprice implements the gas-price oracle cell and its feeder
// (spec §3 "Gas-Price Cell", §4.3).
package gasprice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Speed selects which field of the oracle's response to read.
type Speed string

const (
	Instant  Speed = "instant"
	Fast     Speed = "fast"
	Standard Speed = "standard"
	Slow     Speed = "slow"
)

// Cell is a process-local cell per chain holding the most recently fetched
// gas price in wei, seeded with a default on startup.
type Cell struct {
	mu    sync.Mutex
	price uint64
}

// NewCell seeds the cell with the configured default gas price.
func NewCell(defaultWei uint64) *Cell {
	return &Cell{price: defaultWei}
}

func (c *Cell) Get() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.price
}

func (c *Cell) set(wei uint64) (changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed = c.price != wei
	c.price = wei
	return changed
}

// Retriever fetches one oracle reading. Production code uses
// HTTPRetriever; tests substitute a stub.
type Retriever interface {
	Retrieve(ctx context.Context, speed Speed) (uint64, error)
}

// HTTPRetriever polls a JSON HTTP gas-price oracle, matching
// original_source/bridge/src/bridge/gas_price.rs's Retriever. The oracle
// response is expected to be a JSON object whose field named by Speed
// holds a gas price in gwei (float).
type HTTPRetriever struct {
	URL    string
	Client *http.Client
}

func (r HTTPRetriever) Retrieve(ctx context.Context, speed Speed) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("gasprice: build request: %w", err)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("gasprice: fetch %s: %w", r.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("gasprice: read response: %w", err)
	}

	var fields map[string]json.Number
	if err := json.Unmarshal(body, &fields); err != nil {
		return 0, fmt.Errorf("gasprice: oracle response is not a JSON object: %w", err)
	}

	raw, ok := fields[string(speed)]
	if !ok {
		return 0, fmt.Errorf("gasprice: oracle response missing field %q", speed)
	}
	gwei, err := raw.Float64()
	if err != nil {
		return 0, fmt.Errorf("gasprice: field %q is not numeric: %w", speed, err)
	}
	return WeiFromGwei(gwei), nil
}

// WeiFromGwei converts a gwei float reading to wei, rounding up
// (ceil(price × 10⁹)) the way the Rust source does to avoid
// under-pricing by a fractional wei.
func WeiFromGwei(gwei float64) uint64 {
	return uint64(math.Ceil(gwei * 1e9))
}

// CacheTimeout bounds how long a cached reading is trusted before a fetch
// failure forces a fall back to the configured default rather than a
// stale price (mirrors gas_price.rs's CACHE_TIMEOUT_DURATION).
const CacheTimeout = 5 * time.Minute

// Stream periodically refreshes cell from retriever. On a fetch failure
// (HTTP error, timeout, non-object JSON, missing/non-numeric field) it
// leaves the cell at its last known value — or the configured default if
// no reading has ever succeeded — unless the last successful reading is
// older than CacheTimeout, in which case the cell is reset to the default.
// A changed price is logged at Info; failed fetches are logged at Debug.
type Stream struct {
	cell       *Cell
	retriever  Retriever
	speed      Speed
	defaultWei uint64
	lastGood   time.Time
}

func NewStream(cell *Cell, retriever Retriever, speed Speed, defaultWei uint64) *Stream {
	return &Stream{cell: cell, retriever: retriever, speed: speed, defaultWei: defaultWei}
}

// Tick performs one poll. It never returns an error: a failed fetch is
// logged and the cell is left untouched, except when the last success is
// more than CacheTimeout old, which sets the cell back to the default.
// Before the first success the cell still holds its seed value.
func (s *Stream) Tick(ctx context.Context) {
	wei, err := s.retriever.Retrieve(ctx, s.speed)
	if err != nil {
		if time.Since(s.lastGood) > CacheTimeout && !s.lastGood.IsZero() {
			log.Warn("gas price oracle stale, falling back to default", "speed", s.speed, "default_wei", s.defaultWei, "err", err)
			s.cell.set(s.defaultWei)
			s.lastGood = time.Time{}
			return
		}
		log.Debug("gas price oracle fetch failed, keeping last known value", "speed", s.speed, "err", err)
		return
	}

	s.lastGood = time.Now()
	if s.cell.set(wei) {
		log.Info("gas price updated", "speed", s.speed, "wei", wei)
	}
}

// Run polls Tick at interval until ctx is done.
func (s *Stream) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
