// Package chainmeta retrieves chain metadata and prepares signed,
// RLP-encoded transactions the nonce-managed submitter can hand to
// eth_sendRawTransaction.
package chainmeta

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainID performs the one-shot net_version retrieval each node needs
// before it can sign an EIP-155 transaction. A zero chain-id is rejected:
// the spec requires chain-id to be non-zero before any signing proceeds.
func ChainID(ctx context.Context, client *ethclient.Client) (*big.Int, error) {
	id, err := client.NetworkID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chainmeta: fetch chain id: %w", err)
	}
	if id == nil || id.Sign() == 0 {
		return nil, fmt.Errorf("chainmeta: node reported a zero chain id")
	}
	return id, nil
}
