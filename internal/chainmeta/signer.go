package chainmeta

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxSigner produces a fully signed transaction from an unsigned one, the
// way types.SignTx(tx, types.NewEIP155Signer(chainID), priv) does in the
// teacher's tx-nonces module, except the private key never leaves the
// keystore's process-wide handle.
type TxSigner interface {
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// HashSigner produces a 65-byte (v,r,s) signature over an already-hashed
// message for one authority account. Used for the EIP-191 bridge message
// signature, never for transactions.
type HashSigner interface {
	SignHash(account common.Address, hash []byte) ([]byte, error)
}
