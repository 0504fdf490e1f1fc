// Package signerkeystore adapts go-ethereum's accounts/keystore to the
// chainmeta.TxSigner and chainmeta.HashSigner interfaces the relay core
// depends on, so the core never imports accounts/keystore directly. The
// keystore itself is an external collaborator per the specification's
// scope: this package only unlocks it at startup and forwards sign calls.
package signerkeystore

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// KeyStore wraps an unlocked accounts/keystore.KeyStore. Unlock happens
// once at startup; afterward every Sign call is synchronous in-memory,
// matching the "process-wide immutable handle" treatment in spec §5.
type KeyStore struct {
	ks *keystore.KeyStore
}

// Open loads (or creates) a keystore directory with the standard scrypt
// N/P parameters, matching geth's own default keystore.
func Open(dir string) *KeyStore {
	return &KeyStore{ks: keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)}
}

// Unlock finds the account at address and unlocks it using the password
// read from passwordFile, returning the account for later Sign calls.
func (k *KeyStore) Unlock(address common.Address, passwordFile string) (accounts.Account, error) {
	account := accounts.Account{Address: address}
	found, err := k.ks.Find(account)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("signerkeystore: find account %s: %w", address, err)
	}

	password, err := os.ReadFile(passwordFile)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("signerkeystore: read password file %s: %w", passwordFile, err)
	}

	if err := k.ks.Unlock(found, string(password)); err != nil {
		return accounts.Account{}, fmt.Errorf("signerkeystore: unlock %s: %w", address, err)
	}
	return found, nil
}

// SignHash implements chainmeta.HashSigner: it signs an already-hashed
// EIP-191 message and returns the 65-byte (r,s,v) signature.
func (k *KeyStore) SignHash(account common.Address, hash []byte) ([]byte, error) {
	sig, err := k.ks.SignHash(accounts.Account{Address: account}, hash)
	if err != nil {
		return nil, fmt.Errorf("signerkeystore: sign hash: %w", err)
	}
	return sig, nil
}

// AccountSigner binds one authority account to a KeyStore, implementing
// chainmeta.TxSigner. Each node (home, foreign) gets its own AccountSigner
// over the account that authority uses on that chain.
type AccountSigner struct {
	ks      *KeyStore
	account accounts.Account
}

// NewAccountSigner builds an AccountSigner for an already-unlocked account.
func NewAccountSigner(ks *KeyStore, account accounts.Account) AccountSigner {
	return AccountSigner{ks: ks, account: account}
}

// SignTx implements chainmeta.TxSigner.
func (a AccountSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := a.ks.ks.SignTx(a.account, tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("signerkeystore: sign tx: %w", err)
	}
	return signed, nil
}
