package relay

import (
	"context"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/omni/poa-bridge/internal/balance"
	"github.com/omni/poa-bridge/internal/contracts"
	"github.com/omni/poa-bridge/internal/gasprice"
	"github.com/omni/poa-bridge/internal/logstream"
	"github.com/omni/poa-bridge/internal/message"
	"github.com/omni/poa-bridge/internal/nonce"
)

// stubSourceReader answers message(hash) and signature(hash,index)
// eth_calls by selector, the way S3's fixtures do: the selectors
// 0x490a32c6 and 0x1812d996 dispatch to canned "bytes" return payloads.
type stubSourceReader struct {
	foreign       *contracts.Foreign
	rawMessage    []byte
	signatureByIx map[uint64][]byte
}

func (s *stubSourceReader) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	selector := msg.Data[:4]
	switch common.Bytes2Hex(selector) {
	case "490a32c6": // message(bytes32)
		return s.packed(s.rawMessage)
	case "1812d996": // signature(bytes32,uint256)
		index := new(big.Int).SetBytes(msg.Data[36:68]).Uint64()
		return s.packed(s.signatureByIx[index])
	default:
		return nil, nil
	}
}

func (s *stubSourceReader) packed(data []byte) ([]byte, error) {
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: bytesType}}
	return args.Pack(data)
}

func TestWithdrawRelay_ResolvesAssignmentAndRelaysToHome_S3(t *testing.T) {
	foreign, err := contracts.NewForeign()
	require.NoError(t, err)
	home, err := contracts.NewHome()
	require.NoError(t, err)

	myAddress := common.HexToAddress("0xaff3454fce5edbc8cca8697c15331677e6ebcccc")
	messageHash := common.HexToHash("0xe1fffcc4923d04b559f4d29a8bfc6cda04eb5b0d3c460751c2402c5c5cc9109c")

	lg := types.Log{
		Data: packEventData(t, []string{"address", "bytes32"}, myAddress, messageHash),
	}

	head := &stubHead{head: 100}
	logsSrc := &stubLogs{logs: []types.Log{lg}}
	stream := logstream.New(head, logsSrc, common.HexToAddress("0x4444444444444444444444444444444444444444"),
		[][]common.Hash{{foreign.CollectedSignaturesTopic()}}, 0, 0)

	dep := message.Deposit{
		Recipient: common.HexToAddress("0xaff3454fce5edbc8cca8697c15331677e6ebcccc"),
		Value:     big.NewInt(0xf0),
		TxHash:    common.HexToHash("0x884edad9ce6fa2440d8a54cc123490eb96d2768479d49ff9c7366125a9424364"),
	}
	rawMessage := dep.Encode()

	sig := make([]byte, 65)
	sig[64] = 27

	reader := &stubSourceReader{
		foreign:       foreign,
		rawMessage:    rawMessage,
		signatureByIx: map[uint64][]byte{0: sig},
	}

	destBal := balance.NewCell()
	bm := balance.NewMonitor(destBal, stubBalanceFetcher{v: big.NewInt(1_000_000)}, "home")
	bm.Tick(context.Background())

	sender := &recordingSender{}

	w := &WithdrawRelay{
		Stream:             stream,
		Source:             foreign,
		SourceContractAddr: common.HexToAddress("0x4444444444444444444444444444444444444444"),
		Reader:             reader,
		Destination:        home,
		MyAddress:          myAddress,
		RequiredSignatures: 1,
		DestinationBalance: destBal,
		DestinationGas:     gasprice.NewCell(1),
		NonceCell:          nonce.NewCell(1),
		Noncer:             fixedNoncer{n: 1},
		Sender:             sender,
		Signer:             directSigner{priv: mustKey()},
		ChainID:            big.NewInt(1337),
		ContractAddr:       common.HexToAddress("0x5555555555555555555555555555555555555555"),
		Gas:                100,
		Concurrency:        4,
	}

	checkedTo, ok, err := w.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100), checkedTo)
	require.Len(t, sender.sent, 1)
}

func TestWithdrawRelay_DropsAssignmentNotMine_S3(t *testing.T) {
	foreign, err := contracts.NewForeign()
	require.NoError(t, err)
	home, err := contracts.NewHome()
	require.NoError(t, err)

	myAddress := common.HexToAddress("0xaff3454fce5edbc8cca8697c15331677e6ebcccc")
	notMine := common.HexToAddress("0xaff3454fce5edbc8cca8697c15331677e6ebcccd")
	messageHash := common.HexToHash("0xe1fffcc4923d04b559f4d29a8bfc6cda04eb5b0d3c460751c2402c5c5cc9109c")

	lg := types.Log{
		Data: packEventData(t, []string{"address", "bytes32"}, notMine, messageHash),
	}

	head := &stubHead{head: 100}
	logsSrc := &stubLogs{logs: []types.Log{lg}}
	stream := logstream.New(head, logsSrc, common.HexToAddress("0x4444444444444444444444444444444444444444"),
		[][]common.Hash{{foreign.CollectedSignaturesTopic()}}, 0, 0)

	destBal := balance.NewCell()
	bm := balance.NewMonitor(destBal, stubBalanceFetcher{v: big.NewInt(1_000_000)}, "home")
	bm.Tick(context.Background())

	sender := &recordingSender{}

	w := &WithdrawRelay{
		Stream:             stream,
		Source:             foreign,
		SourceContractAddr: common.HexToAddress("0x4444444444444444444444444444444444444444"),
		Reader:             &stubSourceReader{foreign: foreign},
		Destination:        home,
		MyAddress:          myAddress,
		RequiredSignatures: 1,
		DestinationBalance: destBal,
		DestinationGas:     gasprice.NewCell(1),
		NonceCell:          nonce.NewCell(1),
		Noncer:             fixedNoncer{n: 1},
		Sender:             sender,
		Signer:             directSigner{priv: mustKey()},
		ChainID:            big.NewInt(1337),
		ContractAddr:       common.HexToAddress("0x5555555555555555555555555555555555555555"),
		Gas:                100,
		Concurrency:        4,
	}

	checkedTo, ok, err := w.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100), checkedTo)
	require.Empty(t, sender.sent, "an assignment addressed to another authority must not be submitted")
}
