package rpcerror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockRPCErr struct {
	msg  string
	code int
}

func (m mockRPCErr) Error() string  { return m.msg }
func (m mockRPCErr) ErrorCode() int { return m.code }

func TestClassify_IncrementNonce(t *testing.T) {
	err := Classify(mockRPCErr{msg: "Transaction with the same hash was already imported by incrementing the nonce.", code: -32010})
	require.ErrorIs(t, err, ErrIncrementNonce)
}

func TestClassify_AlreadyImported(t *testing.T) {
	err := Classify(mockRPCErr{msg: "Transaction with the same hash was already imported.", code: -32010})
	require.ErrorIs(t, err, ErrAlreadyImported)
}

func TestClassify_InsufficientFunds(t *testing.T) {
	err := Classify(mockRPCErr{msg: "Insufficient funds.", code: -32010})
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestClassify_NonCode32010PassesThrough(t *testing.T) {
	original := mockRPCErr{msg: "execution reverted", code: -32000}
	err := Classify(original)
	require.Equal(t, original, err)
}

func TestClassify_NonRPCErrorPassesThrough(t *testing.T) {
	original := errors.New("dial tcp: connection refused")
	err := Classify(original)
	require.Equal(t, original, err)
}

func TestClassify_UnclassifiedSuffixIsFatalGeneric(t *testing.T) {
	err := Classify(mockRPCErr{msg: "Some future variant we've never seen.", code: -32010})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrIncrementNonce))
	require.Equal(t, 20, ExitCode(err))
}

func TestContextualize(t *testing.T) {
	err := Contextualize(ErrGasTooLow, "relaying deposit to foreign")
	require.ErrorIs(t, err, ErrGasTooLow)
	require.Contains(t, err.Error(), "relaying deposit to foreign")
}

func TestContextualize_NilPassesThrough(t *testing.T) {
	require.NoError(t, Contextualize(nil, "anything"))
}

func TestExitCode_Table(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{ErrShutdownRequested, 3},
		{ErrInsufficientFunds, 4},
		{ErrGasTooLow, 5},
		{ErrGasPriceTooLow, 6},
		{ErrNonceReuse, 7},
		{ErrCannotConnect, 10},
		{ErrConnectionLost, 11},
		{errors.New("anything else"), 20},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ExitCode(c.err))
	}
}
