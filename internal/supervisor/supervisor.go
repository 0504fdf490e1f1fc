// Package supervisor composes the three relay state machines, the
// balance and gas-price feeders, and the cursor database into the
// daemon's main loop (spec §4.8 "Relay Supervisor"), adapting
// original_source/bridge/src/bridge/mod.rs's select-over-streams shape
// and its BridgeBackend abstraction (spec §11.2).
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/omni/poa-bridge/internal/audit"
	"github.com/omni/poa-bridge/internal/balance"
	"github.com/omni/poa-bridge/internal/gasprice"
	"github.com/omni/poa-bridge/internal/rpcerror"
	"github.com/omni/poa-bridge/internal/store"
)

// Pipeline is satisfied by relay.DepositRelay, relay.Confirm (used for
// both deposit-confirm and withdraw-confirm), and relay.WithdrawRelay:
// spec §4.8 drives all four pipeline instances through the same Poll
// contract.
type Pipeline interface {
	Poll(ctx context.Context) (checkedTo uint64, ok bool, err error)
}

// submissionReporter is implemented by every concrete Pipeline to expose
// the destination transaction hashes its last completed Poll submitted,
// for the optional audit ledger. A Pipeline that doesn't implement it
// (e.g. a test stub) simply contributes no per-transaction detail.
type submissionReporter interface {
	LastSubmitted() []common.Hash
}

// Backend persists a cursor advance. FileBackend is the default,
// production implementation; tests substitute an in-memory one, mirroring
// original_source's BridgeBackend trait.
type Backend interface {
	Save(db store.Database) error
}

// FileBackend rewrites the cursor file whole on every advance: create +
// write + close (spec §4.8 "Cursor write discipline").
type FileBackend struct {
	Path string
}

func (b FileBackend) Save(db store.Database) error {
	return store.Save(b.Path, db)
}

// pipelineSlot binds one named Pipeline to the Database field it
// advances and the chain its destination contract lives on (for the
// audit ledger's chain column).
type pipelineSlot struct {
	name      string
	pipeline  Pipeline
	destChain string
	advance   func(db *store.Database, to uint64)
}

func (sl pipelineSlot) lastSubmitted() []common.Hash {
	if reporter, ok := sl.pipeline.(submissionReporter); ok {
		return reporter.LastSubmitted()
	}
	return nil
}

// Supervisor composes the four relay pipelines, the per-chain balance and
// gas-price feeders, and the cursor backend into the select loop of spec
// §4.8. All four Pipeline fields, Backend, HomeBalance/ForeignBalance, and
// the two gas-price streams must be set before calling Run.
type Supervisor struct {
	Backend Backend
	DB      store.Database
	Audit   *audit.Ledger

	HomeBalance    *balance.Cell
	ForeignBalance *balance.Cell

	// BalanceMonitors are ticked once immediately after any cursor
	// advance, ahead of the next Wait iteration, so a relay that just
	// spent funds sees a fresh balance before the next batch is sized
	// (spec §11.2 "Balance-recheck-after-advance").
	HomeBalanceMonitor    *balance.Monitor
	ForeignBalanceMonitor *balance.Monitor

	HomeGasPrice    *gasprice.Stream
	ForeignGasPrice *gasprice.Stream

	DepositRelay    Pipeline
	DepositConfirm  Pipeline
	WithdrawConfirm Pipeline
	WithdrawRelay   Pipeline

	// PollInterval bounds how often the Wait loop re-polls parked
	// pipelines once nothing advanced in an iteration.
	PollInterval time.Duration

	// Now supplies the audit ledger's submitted_at timestamp. Defaults to
	// a wall-clock reading; tests substitute a fixed function.
	Now func() int64
}

func (s *Supervisor) slots() []pipelineSlot {
	return []pipelineSlot{
		{
			name:      "deposit_relay",
			pipeline:  s.DepositRelay,
			destChain: "foreign",
			advance:   func(db *store.Database, to uint64) { db.CheckedDepositRelay = to },
		},
		{
			name:      "deposit_confirm",
			pipeline:  s.DepositConfirm,
			destChain: "foreign",
			advance:   func(db *store.Database, to uint64) { db.CheckedDepositConfirm = to },
		},
		{
			name:      "withdraw_confirm",
			pipeline:  s.WithdrawConfirm,
			destChain: "home",
			advance:   func(db *store.Database, to uint64) { db.CheckedWithdrawConfirm = to },
		},
		{
			name:      "withdraw_relay",
			pipeline:  s.WithdrawRelay,
			destChain: "home",
			advance:   func(db *store.Database, to uint64) { db.CheckedWithdrawRelay = to },
		},
	}
}

// Run drives the Init → Wait loop until ctx is cancelled (the
// process-wide shutdown signal, spec §5 "Cancellation & timeout") or a
// non-transient error surfaces from one of the four pipelines or from the
// cursor backend. Run never returns nil: it returns
// rpcerror.ErrShutdownRequested on shutdown, otherwise the pipeline or
// persistence error itself, ready for rpcerror.ExitCode (errors matching
// none of rpcerror's sentinel kinds map to the generic RPC code).
func (s *Supervisor) Run(ctx context.Context) error {
	if s.PollInterval <= 0 {
		s.PollInterval = time.Second
	}
	if s.Now == nil {
		s.Now = func() int64 { return time.Now().Unix() }
	}

	// Init — park until both balances have been read at least once.
	for {
		if ctx.Err() != nil {
			return rpcerror.ErrShutdownRequested
		}
		_, homeKnown := s.HomeBalance.Get()
		_, foreignKnown := s.ForeignBalance.Get()
		if homeKnown && foreignKnown {
			break
		}
		if !sleep(ctx, s.PollInterval) {
			return rpcerror.ErrShutdownRequested
		}
	}

	slots := s.slots()

	for {
		if ctx.Err() != nil {
			return rpcerror.ErrShutdownRequested
		}

		// Best-effort: a failed gas-price fetch never surfaces an error
		// (gasprice.Stream.Tick falls back to the last known value).
		s.HomeGasPrice.Tick(ctx)
		s.ForeignGasPrice.Tick(ctx)

		advanced := false
		for _, slot := range slots {
			to, ok, err := slot.pipeline.Poll(ctx)
			if err != nil {
				if rpcerror.IsTransient(err) {
					log.Warn("transient error polling pipeline, retrying next tick", "pipeline", slot.name, "err", err)
					continue
				}
				return err
			}
			if !ok {
				continue
			}

			advanced = true
			slot.advance(&s.DB, to)
			if err := s.Backend.Save(s.DB); err != nil {
				return fmt.Errorf("supervisor: persist cursor after %s advance: %w", slot.name, err)
			}
			log.Info("cursor advanced", "pipeline", slot.name, "to", to)

			if err := s.Audit.RecordBatch(ctx, slot.name, to, slot.destChain, slot.lastSubmitted(), s.Now()); err != nil {
				log.Warn("audit ledger write failed", "pipeline", slot.name, "err", err)
			}

			s.HomeBalanceMonitor.Tick(ctx)
			s.ForeignBalanceMonitor.Tick(ctx)
		}

		if !advanced {
			if !sleep(ctx, s.PollInterval) {
				return rpcerror.ErrShutdownRequested
			}
		}
	}
}

// sleep waits for d or ctx cancellation, returning false in the latter
// case so callers can map it to a shutdown exit.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
