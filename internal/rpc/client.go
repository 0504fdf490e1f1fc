// Package rpc is a thin, context-aware wrapper over ethclient.Client. It
// owns nothing the specification calls out as an external collaborator —
// dialing, call/subscribe/send-raw primitives are ethclient's job — it
// adds the per-call timeout every pipeline is required to apply (spec §5,
// "Cancellation & timeout"), trailing-nil topic trimming for FilterLogs,
// and a SendRaw entry point over already-encoded transactions.
package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps an ethclient.Client with a fixed request timeout applied
// to every call it makes.
type Client struct {
	eth     *ethclient.Client
	timeout time.Duration
}

// Dial connects to endpoint and wraps the resulting client with timeout.
func Dial(ctx context.Context, endpoint string, timeout time.Duration) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", endpoint, err)
	}
	return &Client{eth: eth, timeout: timeout}, nil
}

// Raw exposes the underlying ethclient for callers that need an operation
// this wrapper does not cover (e.g. abi/bind.ContractBackend).
func (c *Client) Raw() *ethclient.Client { return c.eth }

func (c *Client) Close() { c.eth.Close() }

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// ChainID fetches eth_chainId.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.eth.ChainID(ctx)
}

// BlockNumber fetches the current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.eth.BlockNumber(ctx)
}

// FilterLogs retrieves logs matching q, stripping any trailing nil topics
// first since some RPC servers reject explicit nulls in the topics array
// (spec §4.1 edge policy, §9 "Filter-topic trimming").
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	q.Topics = trimTrailingNilTopics(q.Topics)
	return c.eth.FilterLogs(ctx, q)
}

// PendingNonceAt returns the next nonce to use for account, including
// pending mempool transactions.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.eth.PendingNonceAt(ctx, account)
}

// PendingBalanceAt returns account's pending balance — a just-submitted
// transaction must count, per spec §4.2.
func (c *Client) PendingBalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.eth.PendingBalanceAt(ctx, account)
}

// CallContract performs an eth_call against msg at the given block (nil
// for latest).
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.eth.CallContract(ctx, msg, blockNumber)
}

// SendTransaction submits an already-signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.eth.SendTransaction(ctx, tx)
}

// SendRaw implements nonce.Sender over the RLP-encoded bytes
// chainmeta.PrepareRawTransaction hands the submitter (spec §4.4 "Sign &
// Send"). ethclient has no raw-bytes entry point, so the signed
// transaction is decoded back into its typed form before dispatch, and
// ethclient re-encodes it with MarshalBinary for eth_sendRawTransaction;
// the signature is carried over unchanged.
func (c *Client) SendRaw(ctx context.Context, raw []byte) error {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return fmt.Errorf("rpc: decode raw transaction: %w", err)
	}
	return c.SendTransaction(ctx, tx)
}

func trimTrailingNilTopics(topics [][]common.Hash) [][]common.Hash {
	for len(topics) > 0 && len(topics[len(topics)-1]) == 0 {
		topics = topics[:len(topics)-1]
	}
	return topics
}
