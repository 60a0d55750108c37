package simstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Store persists a sandbox session to a JSON file so restarts keep the pool,
// the wallets and the snapshot.
type Store struct {
	path string
}

// NewStore creates a state store writing to path. An empty path disables
// persistence: Load returns nil and Save is a no-op.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return &Store{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create sandbox state dir")
	}
	return &Store{path: path}, nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// State represents all persisted session data. Amounts are decimal strings.
type State struct {
	SavedAt      time.Time       `json:"saved_at"`
	Decimals     int32           `json:"decimals"`
	TokenReserve string          `json:"token_reserve"`
	EthReserve   string          `json:"eth_reserve"`
	InitialPrice string          `json:"initial_price"`
	Wallets      []StoredWallet  `json:"wallets"`
	Snapshot     *StoredSnapshot `json:"snapshot,omitempty"`
}

// StoredWallet is one wallet's positions.
type StoredWallet struct {
	Address       string `json:"address"`
	TokenPosition string `json:"token_position"`
	NetEthFlow    string `json:"net_eth_flow"`
}

// StoredSnapshot is the serializable restore point.
type StoredSnapshot struct {
	TakenAt      time.Time      `json:"taken_at"`
	TokenReserve string         `json:"token_reserve"`
	EthReserve   string         `json:"eth_reserve"`
	Wallets      []StoredWallet `json:"wallets"`
}

// Load reads session state from disk. It returns nil when nothing was saved.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read sandbox state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode sandbox state")
	}

	return &state, nil
}

// Save writes session state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode sandbox state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write sandbox state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist sandbox state")
	}

	return nil
}
