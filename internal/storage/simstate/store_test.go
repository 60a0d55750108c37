package simstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)

	state := State{
		SavedAt:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Decimals:     18,
		TokenReserve: "14520427",
		EthReserve:   "170",
		InitialPrice: "0.0000117",
		Wallets: []StoredWallet{
			{Address: "0x1", TokenPosition: "10.5", NetEthFlow: "-0.25"},
		},
		Snapshot: &StoredSnapshot{
			TokenReserve: "14520437",
			EthReserve:   "169.75",
			Wallets:      []StoredWallet{},
		},
	}
	require.NoError(t, store.Save(state))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	loaded, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state, *loaded)
}

func TestStore_Disabled(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)

	require.NoError(t, store.Save(State{TokenReserve: "1"}))
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)

	var nilStore *Store
	assert.Empty(t, nilStore.Path())
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewStore(path)
	require.NoError(t, err)

	_, err = store.Load()
	assert.Error(t, err)
}
