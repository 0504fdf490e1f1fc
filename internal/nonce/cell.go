// Package nonce implements the per-node nonce cell and the nonce-managed
// transaction submitter (spec §3 "Per-node Nonce Cell", §4.4).
package nonce

import "sync"

// Cell is a process-local, mutex-guarded counter holding the next nonce
// this authority intends to use on one chain. The lock is held only
// across the read-increment section, never across a suspension point
// (spec §5).
type Cell struct {
	mu   sync.Mutex
	next uint64
}

// NewCell seeds a cell with the first nonce to hand out.
func NewCell(next uint64) *Cell {
	return &Cell{next: next}
}

// Take atomically reads and increments the cell, returning the nonce to
// use for this submission. Concurrent callers receive strictly increasing
// values (spec §8 invariant 2).
func (c *Cell) Take() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.next
	c.next++
	return n
}

// Reacquire overwrites the cell with the node's view, never a smaller
// value than what has already been handed out (spec §4.4: "reacquire
// replaces the cell with the node's view, never a smaller value").
func (c *Cell) Reacquire(fromNode uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fromNode > c.next {
		c.next = fromNode
	}
}
