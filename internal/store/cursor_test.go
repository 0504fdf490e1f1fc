package store

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// S4 from the specification: feed the supervisor the token sequence
// [DepositRelay(1)], then restart it with [DepositConfirm(1),
// DepositRelay(2), WithdrawRelay(3)]. After the first run the on-disk
// record has deposit_relay=1; after the second, deposit_confirm=1,
// deposit_relay=2, withdraw_relay=3. All other cursors untouched. This
// test plays both runs directly through Save/Load, without a supervisor.
func TestSaveLoad_S4_CursorPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.toml")

	db := Database{}
	db.CheckedDepositRelay = 1
	require.NoError(t, Save(path, db))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1), loaded.CheckedDepositRelay)
	require.Equal(t, uint64(0), loaded.CheckedDepositConfirm)
	require.Equal(t, uint64(0), loaded.CheckedWithdrawRelay)

	loaded.CheckedDepositConfirm = 1
	loaded.CheckedDepositRelay = 2
	loaded.CheckedWithdrawRelay = 3
	require.NoError(t, Save(path, loaded))

	final, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1), final.CheckedDepositConfirm)
	require.Equal(t, uint64(2), final.CheckedDepositRelay)
	require.Equal(t, uint64(3), final.CheckedWithdrawRelay)
	require.Equal(t, uint64(0), final.CheckedWithdrawConfirm)
}

func TestLoadOrSeed_SeedsFromDeployBlocksWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.toml")
	home := common.HexToAddress("0x49edf201c1e139282643d5e7c6fb0c7219ad1db7")
	foreign := common.HexToAddress("0x49edf201c1e139282643d5e7c6fb0c7219ad1db8")

	db, err := LoadOrSeed(path, home, foreign, 100, 101)
	require.NoError(t, err)
	require.Equal(t, home, db.HomeContractAddress)
	require.Equal(t, foreign, db.ForeignContractAddress)
	require.Equal(t, uint64(100), db.HomeDeployBlock)
	require.Equal(t, uint64(101), db.ForeignDeployBlock)
	require.Equal(t, uint64(100), db.CheckedDepositRelay)
	require.Equal(t, uint64(101), db.CheckedWithdrawConfirm)
}

func TestLoadOrSeed_LoadsExistingFileInstead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.toml")
	seed := Database{CheckedDepositRelay: 42}
	require.NoError(t, Save(path, seed))

	db, err := LoadOrSeed(path, common.Address{}, common.Address{}, 999, 999)
	require.NoError(t, err)
	require.Equal(t, uint64(42), db.CheckedDepositRelay)
}
