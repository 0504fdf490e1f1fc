package nonce

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/omni/poa-bridge/internal/rpcerror"
)

// maxReacquireAttempts bounds the Ready/Sign&Send/Reacquire loop. The
// boundary behavior in the spec (S5) expects exactly one reacquire before
// success; this only guards against a pathological node that always
// answers -32010 "incrementing the nonce.".
const maxReacquireAttempts = 8

// Builder produces the raw signed transaction bytes and its hash for a
// given nonce. It is called again on every reacquire with the refreshed
// nonce.
type Builder func(nonce uint64) (raw []byte, hash common.Hash, err error)

// Sender dispatches an already-signed raw transaction, the way
// eth_sendRawTransaction does.
type Sender interface {
	SendRaw(ctx context.Context, raw []byte) error
}

// NodeNoncer fetches the node's own view of the next nonce, used only on
// Reacquire.
type NodeNoncer interface {
	PendingNonceAt(ctx context.Context) (uint64, error)
}

// Submit runs the Ready / Sign & Send / Reacquire state machine of
// spec §4.4 for one transaction. It returns the transaction hash to
// expect on success — including the "already imported." case, which
// resolves with the canonical hash as a synthetic receipt rather than
// propagating an error.
func Submit(ctx context.Context, cell *Cell, noncer NodeNoncer, sender Sender, build Builder) (common.Hash, error) {
	for attempt := 0; attempt < maxReacquireAttempts; attempt++ {
		nonce := cell.Take()

		raw, hash, err := build(nonce)
		if err != nil {
			return common.Hash{}, fmt.Errorf("nonce: build transaction at nonce %d: %w", nonce, err)
		}

		sendErr := sender.SendRaw(ctx, raw)
		if sendErr == nil {
			return hash, nil
		}

		classified := rpcerror.Classify(sendErr)

		switch {
		case errors.Is(classified, rpcerror.ErrAlreadyImported):
			// Already in the mempool/chain under this hash: treat as success.
			return hash, nil

		case errors.Is(classified, rpcerror.ErrIncrementNonce):
			fresh, nerr := noncer.PendingNonceAt(ctx)
			if nerr != nil {
				return common.Hash{}, fmt.Errorf("nonce: reacquire after increment-nonce error: %w", nerr)
			}
			cell.Reacquire(fresh)
			log.Warn("nonce cell reacquired after increment-nonce rejection", "stale_nonce", nonce, "fresh_nonce", fresh)
			continue

		default:
			return common.Hash{}, fmt.Errorf("nonce: submit at nonce %d: %w", nonce, classified)
		}
	}
	return common.Hash{}, fmt.Errorf("nonce: exceeded %d reacquire attempts", maxReacquireAttempts)
}
