// Package audit adapts the teacher's sqlite log-indexer pattern
// (geth-17-indexer: dial, decode, db.Exec INSERT) into an append-only
// relay ledger that supplements the cursor DB (spec §11.1). It answers
// "what did this authority relay in the last hour" — a question
// original_source/bridge has no durable answer to, since its only
// persisted state is the single-row cursor.
//
// The ledger is pure observability. The cursor DB remains the sole source
// of truth for what has been checked; a missing or corrupt audit database
// has no effect on relay correctness and is never consulted for dedup or
// resumption (spec §11.1).
package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS relays(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pipeline TEXT NOT NULL,
	block INTEGER NOT NULL,
	source_tx_hash TEXT,
	dest_tx_hash TEXT,
	chain TEXT NOT NULL,
	submitted_at INTEGER NOT NULL
)`

// Ledger is an append-only record of relayed transactions backed by a
// sqlite file. A zero-value Ledger (DB == nil) is a no-op sink, matching
// the "--audit-db optional, zero value disables the feature" wiring in
// §11.1 so a bridge that only wants the cursor file behaves exactly as
// original_source does.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite file at path and ensures
// the relays table exists. An empty path yields a disabled Ledger.
func Open(path string) (*Ledger, error) {
	if path == "" {
		return &Ledger{}, nil
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Entry is one row the supervisor records after a pipeline's batch has
// resolved. SourceTxHash is optional (the three confirm/relay pipelines
// don't all have a single obvious source hash per destination tx); a zero
// hash is stored as NULL.
type Entry struct {
	Pipeline     string
	Block        uint64
	Chain        string
	SourceTxHash common.Hash
	DestTxHash   common.Hash
	SubmittedAt  int64
}

// Record inserts one row per Entry. A write failure is returned to the
// caller to log, not to fail the relay pipeline (spec §11.1: "A write
// failure to the audit ledger is logged and does not fail the pipeline").
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if l == nil || l.db == nil {
		return nil
	}
	var source, dest interface{}
	if e.SourceTxHash != (common.Hash{}) {
		source = e.SourceTxHash.Hex()
	}
	if e.DestTxHash != (common.Hash{}) {
		dest = e.DestTxHash.Hex()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO relays(pipeline, block, source_tx_hash, dest_tx_hash, chain, submitted_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Pipeline, e.Block, source, dest, e.Chain, e.SubmittedAt)
	if err != nil {
		return fmt.Errorf("audit: insert relay row: %w", err)
	}
	return nil
}

// RecordBatch inserts one row per destination hash in hashes, all sharing
// the same pipeline/block/chain/timestamp — the common case of a batch
// that submitted K transactions for one checked-block advance.
func (l *Ledger) RecordBatch(ctx context.Context, pipeline string, block uint64, chain string, hashes []common.Hash, submittedAt int64) error {
	if l == nil || l.db == nil {
		return nil
	}
	if len(hashes) == 0 {
		return l.Record(ctx, Entry{Pipeline: pipeline, Block: block, Chain: chain, SubmittedAt: submittedAt})
	}
	for _, h := range hashes {
		if err := l.Record(ctx, Entry{Pipeline: pipeline, Block: block, Chain: chain, DestTxHash: h, SubmittedAt: submittedAt}); err != nil {
			return err
		}
	}
	return nil
}
