package relay

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/omni/poa-bridge/internal/balance"
	"github.com/omni/poa-bridge/internal/contracts"
	"github.com/omni/poa-bridge/internal/gasprice"
	"github.com/omni/poa-bridge/internal/logstream"
	"github.com/omni/poa-bridge/internal/nonce"
)

func newTestDepositRelay(t *testing.T, head *stubHead, logsSrc *stubLogs, bal *big.Int) (*DepositRelay, *recordingSender) {
	t.Helper()

	home, err := contracts.NewHome()
	require.NoError(t, err)
	foreign, err := contracts.NewForeign()
	require.NoError(t, err)

	stream := logstream.New(head, logsSrc, common.HexToAddress("0x1111111111111111111111111111111111111111"),
		[][]common.Hash{{home.DepositTopic()}}, 0, 0)

	foreignBal := balance.NewCell()
	if bal != nil {
		bm := balance.NewMonitor(foreignBal, stubBalanceFetcher{v: bal}, "foreign")
		bm.Tick(context.Background())
	}

	sender := &recordingSender{}

	r := &DepositRelay{
		Stream:          stream,
		Home:            home,
		Foreign:         foreign,
		ForeignBalance:  foreignBal,
		ForeignGasPrice: gasprice.NewCell(1),
		NonceCell:       nonce.NewCell(1),
		Noncer:          fixedNoncer{n: 1},
		Sender:          sender,
		Signer:          directSigner{priv: mustKey()},
		ChainID:         big.NewInt(1337),
		ContractAddr:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Gas:             100,
		Concurrency:     4,
	}
	return r, sender
}

type stubBalanceFetcher struct{ v *big.Int }

func (f stubBalanceFetcher) PendingBalanceAt(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.v), nil
}

func TestDepositRelay_RelaysDepositToForeign(t *testing.T) {
	recipient := common.HexToAddress("0xaff3454fce5edbc8cca8697c15331677e6ebcccc")
	value := big.NewInt(0xf0)

	lg := types.Log{
		TxHash: common.HexToHash("0x884edad9ce6fa2440d8a54cc123490eb96d2768479d49ff9c7366125a9424364"),
		Data:   packEventData(t, []string{"address", "uint256"}, recipient, value),
	}

	head := &stubHead{head: 100}
	logsSrc := &stubLogs{logs: []types.Log{lg}}
	r, sender := newTestDepositRelay(t, head, logsSrc, big.NewInt(1_000_000))

	checkedTo, ok, err := r.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100), checkedTo)
	require.Len(t, sender.sent, 1)
}

func TestDepositRelay_ParksWhenBalanceUnknown(t *testing.T) {
	recipient := common.HexToAddress("0xaff3454fce5edbc8cca8697c15331677e6ebcccc")
	lg := types.Log{
		TxHash: common.HexToHash("0x884edad9ce6fa2440d8a54cc123490eb96d2768479d49ff9c7366125a9424364"),
		Data:   packEventData(t, []string{"address", "uint256"}, recipient, big.NewInt(1)),
	}

	head := &stubHead{head: 100}
	logsSrc := &stubLogs{logs: []types.Log{lg}}
	r, sender := newTestDepositRelay(t, head, logsSrc, nil)

	_, ok, err := r.Poll(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, sender.sent)
	require.NotNil(t, r.pending, "the fetched batch must be retained, not re-fetched, while parked")

	// Once the balance becomes known, the same retained batch is submitted
	// without re-querying the log stream.
	logsSrc.logs = nil
	bm := balance.NewMonitor(r.ForeignBalance, stubBalanceFetcher{v: big.NewInt(1_000_000)}, "foreign")
	bm.Tick(context.Background())

	checkedTo, ok, err := r.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100), checkedTo)
	require.Len(t, sender.sent, 1)
}

func TestDepositRelay_InsufficientFunds_S6(t *testing.T) {
	recipient := common.HexToAddress("0xaff3454fce5edbc8cca8697c15331677e6ebcccc")
	lg := types.Log{
		TxHash: common.HexToHash("0x884edad9ce6fa2440d8a54cc123490eb96d2768479d49ff9c7366125a9424364"),
		Data:   packEventData(t, []string{"address", "uint256"}, recipient, big.NewInt(1)),
	}

	head := &stubHead{head: 100}
	logsSrc := &stubLogs{logs: []types.Log{lg}}
	r, sender := newTestDepositRelay(t, head, logsSrc, big.NewInt(10))
	r.Gas = 100
	r.ForeignGasPrice = gasprice.NewCell(1)

	_, ok, err := r.Poll(context.Background())
	require.False(t, ok)
	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.Empty(t, sender.sent)
}
