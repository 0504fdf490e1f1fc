package relay

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/omni/poa-bridge/internal/balance"
	"github.com/omni/poa-bridge/internal/chainmeta"
	"github.com/omni/poa-bridge/internal/contracts"
	"github.com/omni/poa-bridge/internal/gasprice"
	"github.com/omni/poa-bridge/internal/logstream"
	"github.com/omni/poa-bridge/internal/nonce"
	"github.com/omni/poa-bridge/internal/rpcerror"
)

// DepositRelay implements home Deposit → foreign deposit(recipient,
// value, txHash) (spec §4.5).
type DepositRelay struct {
	Stream          *logstream.Stream
	Home            *contracts.Home
	Foreign         *contracts.Foreign
	ForeignBalance  *balance.Cell
	ForeignGasPrice *gasprice.Cell
	NonceCell       *nonce.Cell
	Noncer          nonce.NodeNoncer
	Sender          nonce.Sender
	Signer          chainmeta.TxSigner
	ChainID         *big.Int
	ContractAddr    common.Address
	Gas             uint64
	Concurrency     int64

	pending   *logstream.Batch
	submitted hashCollector
}

// LastSubmitted returns the destination transaction hashes produced by
// the most recently completed Poll call and clears them, for the
// supervisor's optional audit ledger (spec §11.1).
func (r *DepositRelay) LastSubmitted() []common.Hash { return r.submitted.drain() }

// InsufficientFundsError reports the local pre-check failure of spec §4.5
// step 1 / §7 "Local logic".
type InsufficientFundsError struct {
	Required, Available *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, available %s", e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error { return rpcerror.ErrInsufficientFunds }

// Poll advances the pipeline by at most one batch. ok is true only when a
// cursor advance to `checkedTo` may be committed — either because the
// batch was empty or because every submission in it resolved. When ok is
// false and err is nil, the pipeline is parked (no new batch yet, or
// foreign balance not yet known) and should be polled again later.
func (r *DepositRelay) Poll(ctx context.Context) (checkedTo uint64, ok bool, err error) {
	if r.pending == nil {
		batch, err := r.Stream.Poll(ctx)
		if err != nil {
			return 0, false, rpcerror.Contextualize(err, "polling home for Deposit event logs")
		}
		if batch == nil {
			return 0, false, nil
		}
		r.pending = batch
	}

	batch := r.pending

	if len(batch.Logs) == 0 {
		r.pending = nil
		return batch.To, true, nil
	}

	bal, known := r.ForeignBalance.Get()
	if !known {
		return 0, false, nil
	}

	gasPrice := r.ForeignGasPrice.Get()
	required := new(big.Int).Mul(new(big.Int).SetUint64(r.Gas*uint64(len(batch.Logs))), new(big.Int).SetUint64(gasPrice))
	if required.Cmp(bal) > 0 {
		r.pending = nil
		return 0, false, &InsufficientFundsError{Required: required, Available: bal}
	}

	return r.submitBatch(ctx, batch, gasPrice)
}

func (r *DepositRelay) submitBatch(ctx context.Context, batch *logstream.Batch, gasPrice uint64) (uint64, bool, error) {
	homeEvents, err := r.decodeDeposits(batch.Logs)
	if err != nil {
		r.pending = nil
		return 0, false, rpcerror.Contextualize(err, "decoding home Deposit event logs")
	}

	submit := func(ctx context.Context, i int) error {
		ev := homeEvents[i]
		data, err := r.Foreign.PackDeposit(ev.Recipient, ev.Value, ev.TxHash)
		if err != nil {
			return fmt.Errorf("pack deposit call: %w", err)
		}

		build := func(n uint64) ([]byte, common.Hash, error) {
			return chainmeta.PrepareRawTransaction(n, chainmeta.UnsignedCall{
				To:       r.ContractAddr,
				Gas:      r.Gas,
				GasPrice: new(big.Int).SetUint64(gasPrice),
				Data:     data,
			}, r.ChainID, r.Signer)
		}

		hash, err := nonce.Submit(ctx, r.NonceCell, r.Noncer, r.Sender, build)
		if err != nil {
			return err
		}
		r.submitted.add(hash)
		return nil
	}

	if err := submitAll(ctx, r.Concurrency, len(homeEvents), submit); err != nil {
		return 0, false, rpcerror.Contextualize(err, "relaying deposit to foreign")
	}

	log.Info("deposit batch relayed", "from", batch.From, "to", batch.To, "count", len(homeEvents))
	r.pending = nil
	return batch.To, true, nil
}

type homeDeposit struct {
	Recipient common.Address
	Value     *big.Int
	TxHash    common.Hash
}

func (r *DepositRelay) decodeDeposits(logs []types.Log) ([]homeDeposit, error) {
	out := make([]homeDeposit, len(logs))
	for i, lg := range logs {
		ev, err := r.Home.ParseDeposit(lg)
		if err != nil {
			return nil, fmt.Errorf("log %d: %w", i, err)
		}
		out[i] = homeDeposit{Recipient: ev.Recipient, Value: ev.Value, TxHash: lg.TxHash}
	}
	return out, nil
}
