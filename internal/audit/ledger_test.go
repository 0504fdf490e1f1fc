package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestOpen_DisabledWithEmptyPath(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	require.NoError(t, l.Record(context.Background(), Entry{Pipeline: "deposit_relay"}))
	require.NoError(t, l.Close())
}

func TestRecord_InsertsRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	destHash := common.HexToHash("0x884edad9ce6fa2440d8a54cc123490eb96d2768479d49ff9c7366125a942436")
	require.NoError(t, l.Record(context.Background(), Entry{
		Pipeline:   "deposit_relay",
		Block:      42,
		Chain:      "foreign",
		DestTxHash: destHash,
	}))

	var count int
	require.NoError(t, l.db.QueryRow(`SELECT COUNT(*) FROM relays WHERE pipeline = ? AND block = ?`, "deposit_relay", 42).Scan(&count))
	require.Equal(t, 1, count)

	var destHex sql.NullString
	require.NoError(t, l.db.QueryRow(`SELECT dest_tx_hash FROM relays WHERE block = ?`, 42).Scan(&destHex))
	require.True(t, destHex.Valid)
	require.Equal(t, destHash.Hex(), destHex.String)
}

func TestRecordBatch_OneRowPerHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	hashes := []common.Hash{common.HexToHash("0x1"), common.HexToHash("0x2"), common.HexToHash("0x3")}
	require.NoError(t, l.RecordBatch(context.Background(), "withdraw_relay", 7, "home", hashes, 1000))

	var count int
	require.NoError(t, l.db.QueryRow(`SELECT COUNT(*) FROM relays WHERE pipeline = 'withdraw_relay' AND block = 7`).Scan(&count))
	require.Equal(t, 3, count)
}

func TestRecordBatch_EmptyBatchStillRecordsAdvance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.RecordBatch(context.Background(), "deposit_confirm", 3, "foreign", nil, 1000))

	var count int
	require.NoError(t, l.db.QueryRow(`SELECT COUNT(*) FROM relays WHERE pipeline = 'deposit_confirm' AND block = 3`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestNilLedger_IsNoOp(t *testing.T) {
	var l *Ledger
	require.NoError(t, l.Record(context.Background(), Entry{}))
	require.NoError(t, l.Close())
}
