package relay

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/omni/poa-bridge/internal/balance"
	"github.com/omni/poa-bridge/internal/chainmeta"
	"github.com/omni/poa-bridge/internal/contracts"
	"github.com/omni/poa-bridge/internal/gasprice"
	"github.com/omni/poa-bridge/internal/logstream"
	"github.com/omni/poa-bridge/internal/message"
	"github.com/omni/poa-bridge/internal/nonce"
	"github.com/omni/poa-bridge/internal/rpcerror"
)

// CallReader performs an eth_call against the source chain, used to fetch
// the message and signature bytes a CollectedSignatures event refers to.
type CallReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// WithdrawRelay implements foreign CollectedSignatures → fetch
// message+sigs from foreign → home withdraw(v,r,s,msg), the two-phase
// pipeline of spec §4.7.
type WithdrawRelay struct {
	Stream             *logstream.Stream
	Source             *contracts.Foreign
	SourceContractAddr common.Address
	Reader             CallReader
	Destination        *contracts.Home
	MyAddress          common.Address
	RequiredSignatures uint32

	DestinationBalance *balance.Cell
	DestinationGas     *gasprice.Cell
	NonceCell          *nonce.Cell
	Noncer             nonce.NodeNoncer
	Sender             nonce.Sender
	Signer             chainmeta.TxSigner
	ChainID            *big.Int
	ContractAddr       common.Address
	Gas                uint64
	Concurrency        int64

	pending   *logstream.Batch
	submitted hashCollector
}

// LastSubmitted returns the destination transaction hashes produced by
// the most recently completed Poll call and clears them, for the
// supervisor's optional audit ledger (spec §11.1).
func (w *WithdrawRelay) LastSubmitted() []common.Hash { return w.submitted.drain() }

// withdrawJob is one fully-resolved withdraw ready to submit: the
// original message bytes (84, or 92 with an embedded gas price) plus its
// collected signatures.
type withdrawJob struct {
	rawMessage []byte
	vs         []uint8
	rs, ss     [][32]byte
	gasPrice   uint64
}

// Poll has the same contract as DepositRelay.Poll. Unlike the single-read
// pipelines, a withdraw assignment requires several sequential eth_calls
// per event (phase 1) before anything can be submitted (phase 2); those
// reads happen inline here since the specification does not require them
// to overlap across events within the same batch.
func (w *WithdrawRelay) Poll(ctx context.Context) (checkedTo uint64, ok bool, err error) {
	if w.pending == nil {
		batch, err := w.Stream.Poll(ctx)
		if err != nil {
			return 0, false, rpcerror.Contextualize(err, "polling for CollectedSignatures event logs")
		}
		if batch == nil {
			return 0, false, nil
		}
		w.pending = batch
	}

	batch := w.pending

	if len(batch.Logs) == 0 {
		w.pending = nil
		return batch.To, true, nil
	}

	bal, known := w.DestinationBalance.Get()
	if !known {
		return 0, false, nil
	}

	jobs, err := w.resolveAssignments(ctx, batch)
	if err != nil {
		w.pending = nil
		return 0, false, rpcerror.Contextualize(err, "fetching message and signatures for collected-signatures event")
	}

	if len(jobs) == 0 {
		// every event in this batch belonged to another authority.
		w.pending = nil
		return batch.To, true, nil
	}

	fallbackGasPrice := w.DestinationGas.Get()
	required := new(big.Int).Mul(new(big.Int).SetUint64(w.Gas*uint64(len(jobs))), new(big.Int).SetUint64(fallbackGasPrice))
	if required.Cmp(bal) > 0 {
		w.pending = nil
		return 0, false, &InsufficientFundsError{Required: required, Available: bal}
	}

	return w.submitJobs(ctx, batch, jobs, fallbackGasPrice)
}

// resolveAssignments runs phase 1: decode each event, drop ones not
// assigned to us, and fetch the message + required_signatures worth of
// signature bytes for the ones that are.
func (w *WithdrawRelay) resolveAssignments(ctx context.Context, batch *logstream.Batch) ([]withdrawJob, error) {
	var jobs []withdrawJob

	for authorityIdx, lg := range batch.Logs {
		ev, err := w.Source.ParseCollectedSignatures(lg)
		if err != nil {
			return nil, fmt.Errorf("log %d: %w", authorityIdx, err)
		}

		assignment, mine := contracts.ResolveAssignment(ev, w.MyAddress, uint64(authorityIdx))
		if !mine {
			continue
		}

		rawMessage, err := w.call(ctx, w.Source.PackMessage, assignment.MessageHash, "message")
		if err != nil {
			return nil, err
		}

		vs := make([]uint8, 0, w.RequiredSignatures)
		rs := make([][32]byte, 0, w.RequiredSignatures)
		ss := make([][32]byte, 0, w.RequiredSignatures)
		for i := uint64(0); i < uint64(w.RequiredSignatures); i++ {
			sig, err := w.callSignature(ctx, assignment.MessageHash, i)
			if err != nil {
				return nil, err
			}
			if len(sig) != 65 {
				return nil, fmt.Errorf("signature %d for %s has length %d, want 65", i, assignment.MessageHash, len(sig))
			}
			rs = append(rs, [32]byte(sig[0:32]))
			ss = append(ss, [32]byte(sig[32:64]))
			vs = append(vs, sig[64])
		}

		gasPrice := w.DestinationGas.Get()
		if embedded, ok := message.EmbeddedGasPrice(rawMessage); ok {
			gasPrice = embedded
		}

		jobs = append(jobs, withdrawJob{rawMessage: rawMessage, vs: vs, rs: rs, ss: ss, gasPrice: gasPrice})
	}

	return jobs, nil
}

func (w *WithdrawRelay) call(ctx context.Context, pack func(common.Hash) ([]byte, error), hash common.Hash, method string) ([]byte, error) {
	data, err := pack(hash)
	if err != nil {
		return nil, fmt.Errorf("pack %s call: %w", method, err)
	}
	raw, err := w.Reader.CallContract(ctx, ethereum.CallMsg{To: &w.SourceContractAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return w.Source.UnpackBytesResult(method, raw)
}

func (w *WithdrawRelay) callSignature(ctx context.Context, hash common.Hash, index uint64) ([]byte, error) {
	data, err := w.Source.PackSignature(hash, index)
	if err != nil {
		return nil, fmt.Errorf("pack signature call: %w", err)
	}
	raw, err := w.Reader.CallContract(ctx, ethereum.CallMsg{To: &w.SourceContractAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call signature: %w", err)
	}
	return w.Source.UnpackBytesResult("signature", raw)
}

func (w *WithdrawRelay) submitJobs(ctx context.Context, batch *logstream.Batch, jobs []withdrawJob, fallbackGasPrice uint64) (uint64, bool, error) {
	submit := func(ctx context.Context, i int) error {
		job := jobs[i]

		data, err := w.Destination.PackWithdraw(job.vs, job.rs, job.ss, job.rawMessage)
		if err != nil {
			return fmt.Errorf("pack withdraw call: %w", err)
		}

		gasPrice := job.gasPrice
		if gasPrice == 0 {
			gasPrice = fallbackGasPrice
		}

		build := func(n uint64) ([]byte, common.Hash, error) {
			return chainmeta.PrepareRawTransaction(n, chainmeta.UnsignedCall{
				To:       w.ContractAddr,
				Gas:      w.Gas,
				GasPrice: new(big.Int).SetUint64(gasPrice),
				Data:     data,
			}, w.ChainID, w.Signer)
		}

		hash, err := nonce.Submit(ctx, w.NonceCell, w.Noncer, w.Sender, build)
		if err != nil {
			return err
		}
		w.submitted.add(hash)
		return nil
	}

	if err := submitAll(ctx, w.Concurrency, len(jobs), submit); err != nil {
		return 0, false, rpcerror.Contextualize(err, "relaying withdraw to home")
	}

	log.Info("withdraw batch relayed", "from", batch.From, "to", batch.To, "count", len(jobs))
	w.pending = nil
	return batch.To, true, nil
}
