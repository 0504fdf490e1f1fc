package relay

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/omni/poa-bridge/internal/balance"
	"github.com/omni/poa-bridge/internal/contracts"
	"github.com/omni/poa-bridge/internal/gasprice"
	"github.com/omni/poa-bridge/internal/logstream"
	"github.com/omni/poa-bridge/internal/message"
	"github.com/omni/poa-bridge/internal/nonce"
)

// TestConfirm_DepositConfirm_SignsAndSubmitsToForeign exercises the
// deposit-confirm direction: a home Deposit is observed, signed, and
// relayed as foreign submitSignature(signature, message).
func TestConfirm_DepositConfirm_SignsAndSubmitsToForeign(t *testing.T) {
	home, err := contracts.NewHome()
	require.NoError(t, err)
	foreign, err := contracts.NewForeign()
	require.NoError(t, err)

	recipient := common.HexToAddress("0xaff3454fce5edbc8cca8697c15331677e6ebcccc")
	value := big.NewInt(0xf0)
	txHash := common.HexToHash("0x884edad9ce6fa2440d8a54cc123490eb96d2768479d49ff9c7366125a9424364")

	lg := types.Log{
		TxHash: txHash,
		Data:   packEventData(t, []string{"address", "uint256"}, recipient, value),
	}

	head := &stubHead{head: 100}
	logsSrc := &stubLogs{logs: []types.Log{lg}}
	stream := logstream.New(head, logsSrc, common.HexToAddress("0x1111111111111111111111111111111111111111"),
		[][]common.Hash{{home.DepositTopic()}}, 0, 0)

	destBal := balance.NewCell()
	bm := balance.NewMonitor(destBal, stubBalanceFetcher{v: big.NewInt(1_000_000)}, "foreign")
	bm.Tick(context.Background())

	signer := directSigner{priv: mustKey()}
	sender := &recordingSender{}

	c := &Confirm{
		Stream:             stream,
		Source:             home,
		Destination:        foreign,
		DestinationBalance: destBal,
		DestinationGas:     gasprice.NewCell(1),
		NonceCell:          nonce.NewCell(1),
		Noncer:             fixedNoncer{n: 1},
		Sender:             sender,
		Signer:             signer,
		HashSigner:         signer,
		SigningAccount:     common.HexToAddress("0x3333333333333333333333333333333333333333"),
		ChainID:            big.NewInt(1337),
		ContractAddr:       common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Gas:                100,
		Concurrency:        4,
	}

	checkedTo, ok, err := c.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100), checkedTo)
	require.Len(t, sender.sent, 1)
}

func TestConfirm_SignatureIsOverEIP191HashOfEncodedMessage(t *testing.T) {
	recipient := common.HexToAddress("0xaff3454fce5edbc8cca8697c15331677e6ebcccc")
	value := big.NewInt(42)
	txHash := common.HexToHash("0x884edad9ce6fa2440d8a54cc123490eb96d2768479d49ff9c7366125a9424364")

	dep := message.Deposit{Recipient: recipient, Value: value, TxHash: txHash}
	encoded := dep.Encode()
	hash := message.EIP191Hash(encoded)
	require.Equal(t, accounts.TextHash(encoded), hash.Bytes())

	priv := mustKey()
	signer := directSigner{priv: priv}

	sig, err := signer.SignHash(common.Address{}, hash.Bytes())
	require.NoError(t, err)
	require.Len(t, sig, 65)

	recoveredPub, err := crypto.SigToPub(hash.Bytes(), sig)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(priv.PublicKey), crypto.PubkeyToAddress(*recoveredPub))
}
