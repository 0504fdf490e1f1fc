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
	"github.com/omni/poa-bridge/internal/message"
	"github.com/omni/poa-bridge/internal/nonce"
	"github.com/omni/poa-bridge/internal/rpcerror"
)

// submitSignaturePacker is implemented by both contracts.Home and
// contracts.Foreign: confirm is the signing side of either direction, so
// it is parameterized over which contract receives submitSignature.
type submitSignaturePacker interface {
	PackSubmitSignature(signature, message []byte) ([]byte, error)
}

// depositLogParser is implemented by both contracts.Home and
// contracts.Foreign: confirm watches whichever chain is the source for
// its direction.
type depositLogParser interface {
	ParseDeposit(log types.Log) (contracts.DepositEvent, error)
}

// Confirm implements the "sign & submit" half of both directions: deposit
// confirm (home Deposit → sign → foreign submitSignature) and withdraw
// confirm (foreign Deposit → sign → home submitSignature), per spec §4.6.
// Which direction a given instance performs is determined entirely by its
// wiring (Stream reads one chain's logs, Destination packs calls for the
// other).
type Confirm struct {
	Stream             *logstream.Stream
	Source             depositLogParser
	Destination        submitSignaturePacker
	DestinationBalance *balance.Cell
	DestinationGas     *gasprice.Cell
	NonceCell          *nonce.Cell
	Noncer             nonce.NodeNoncer
	Sender             nonce.Sender
	Signer             chainmeta.TxSigner
	HashSigner         chainmeta.HashSigner
	SigningAccount     common.Address
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
func (c *Confirm) LastSubmitted() []common.Hash { return c.submitted.drain() }

// Poll has the same contract as DepositRelay.Poll.
func (c *Confirm) Poll(ctx context.Context) (checkedTo uint64, ok bool, err error) {
	if c.pending == nil {
		batch, err := c.Stream.Poll(ctx)
		if err != nil {
			return 0, false, rpcerror.Contextualize(err, "polling source chain for transfer event logs")
		}
		if batch == nil {
			return 0, false, nil
		}
		c.pending = batch
	}

	batch := c.pending

	if len(batch.Logs) == 0 {
		c.pending = nil
		return batch.To, true, nil
	}

	bal, known := c.DestinationBalance.Get()
	if !known {
		return 0, false, nil
	}

	gasPrice := c.DestinationGas.Get()
	required := new(big.Int).Mul(new(big.Int).SetUint64(c.Gas*uint64(len(batch.Logs))), new(big.Int).SetUint64(gasPrice))
	if required.Cmp(bal) > 0 {
		c.pending = nil
		return 0, false, &InsufficientFundsError{Required: required, Available: bal}
	}

	return c.submitBatch(ctx, batch, gasPrice)
}

func (c *Confirm) submitBatch(ctx context.Context, batch *logstream.Batch, gasPrice uint64) (uint64, bool, error) {
	deposits, err := decodeSourceDeposits(c.Source, batch.Logs)
	if err != nil {
		c.pending = nil
		return 0, false, rpcerror.Contextualize(err, "decoding source transfer event logs")
	}

	submit := func(ctx context.Context, i int) error {
		encodedMsg := deposits[i].Encode()

		sig, err := c.HashSigner.SignHash(c.SigningAccount, message.EIP191Hash(encodedMsg).Bytes())
		if err != nil {
			return fmt.Errorf("sign bridge message: %w", err)
		}

		data, err := c.Destination.PackSubmitSignature(sig, encodedMsg)
		if err != nil {
			return fmt.Errorf("pack submitSignature call: %w", err)
		}

		build := func(n uint64) ([]byte, common.Hash, error) {
			return chainmeta.PrepareRawTransaction(n, chainmeta.UnsignedCall{
				To:       c.ContractAddr,
				Gas:      c.Gas,
				GasPrice: new(big.Int).SetUint64(gasPrice),
				Data:     data,
			}, c.ChainID, c.Signer)
		}

		hash, err := nonce.Submit(ctx, c.NonceCell, c.Noncer, c.Sender, build)
		if err != nil {
			return err
		}
		c.submitted.add(hash)
		return nil
	}

	if err := submitAll(ctx, c.Concurrency, len(deposits), submit); err != nil {
		return 0, false, rpcerror.Contextualize(err, "submitting signature to destination")
	}

	log.Info("confirm batch signed and submitted", "from", batch.From, "to", batch.To, "count", len(deposits))
	c.pending = nil
	return batch.To, true, nil
}

func decodeSourceDeposits(source depositLogParser, logs []types.Log) ([]message.Deposit, error) {
	out := make([]message.Deposit, len(logs))
	for i, lg := range logs {
		ev, err := source.ParseDeposit(lg)
		if err != nil {
			return nil, fmt.Errorf("log %d: %w", i, err)
		}
		out[i] = message.Deposit{Recipient: ev.Recipient, Value: ev.Value, TxHash: lg.TxHash}
	}
	return out, nil
}
