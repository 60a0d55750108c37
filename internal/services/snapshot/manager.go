// Package snapshot captures a restore point of the pool ledger and reports
// per-wallet position deltas against it.
package snapshot

import (
	"math/big"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ohikava/token-sandbox/internal/domain"
	"github.com/ohikava/token-sandbox/internal/pool"
	"github.com/ohikava/token-sandbox/pkg/fixedpoint"
)

// Snapshot is an immutable copy of the ledger at capture time.
type Snapshot struct {
	TokenReserve *big.Int
	EthReserve   *big.Int
	Wallets      []string
	Holdings     map[string]domain.Holding
	TakenAt      time.Time
}

// Manager keeps at most one snapshot of a ledger.
type Manager struct {
	ledger *pool.Ledger
	scale  fixedpoint.Scale
	logger *zap.Logger
	now    func() time.Time

	current *Snapshot
}

// NewManager creates a manager bound to ledger.
func NewManager(ledger *pool.Ledger, scale fixedpoint.Scale, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		ledger: ledger,
		scale:  scale,
		logger: logger,
		now:    time.Now,
	}
}

// Capture records reserves and every known wallet, replacing any prior snapshot.
func (m *Manager) Capture() {
	token, eth := m.ledger.Reserves()
	wallets := m.ledger.Wallets()
	holdings := make(map[string]domain.Holding, len(wallets))
	for _, w := range wallets {
		holdings[w] = m.ledger.Holdings(w)
	}

	m.current = &Snapshot{
		TokenReserve: token,
		EthReserve:   eth,
		Wallets:      wallets,
		Holdings:     holdings,
		TakenAt:      m.now(),
	}
	m.logger.Debug("snapshot captured",
		zap.Int("wallets", len(wallets)),
		zap.String("token_reserve", m.scale.FromScaled(token).String()),
		zap.String("eth_reserve", m.scale.FromScaled(eth).String()))
}

// Captured reports whether a snapshot exists.
func (m *Manager) Captured() bool {
	return m.current != nil
}

// Snapshot returns a deep copy of the current snapshot.
func (m *Manager) Snapshot() (Snapshot, error) {
	if m.current == nil {
		return Snapshot{}, domain.ErrNoSnapshot
	}
	return m.current.clone(), nil
}

// Load installs s as the current snapshot without touching the ledger.
// Used when a session is imported from disk.
func (m *Manager) Load(s Snapshot) {
	c := s.clone()
	m.current = &c
}

// Restore resets the ledger to the snapshot. Wallets first seen after the
// capture are dropped.
func (m *Manager) Restore() error {
	if m.current == nil {
		return errors.Wrap(domain.ErrNoSnapshot, "restore")
	}
	s := m.current.clone()
	if err := m.ledger.Replace(s.TokenReserve, s.EthReserve, s.Wallets, s.Holdings); err != nil {
		return errors.Wrap(err, "restore")
	}
	m.logger.Info("state restored from snapshot",
		zap.Int("wallets", len(s.Wallets)),
		zap.Time("taken_at", s.TakenAt))
	return nil
}

// Diff returns current minus captured positions for every snapshot wallet.
// Wallets created after the capture are not included.
func (m *Manager) Diff() (map[string]domain.WalletChange, error) {
	if m.current == nil {
		return nil, errors.Wrap(domain.ErrNoSnapshot, "diff")
	}

	out := make(map[string]domain.WalletChange, len(m.current.Wallets))
	for _, w := range m.current.Wallets {
		before := m.current.Holdings[w]
		now := m.ledger.Holdings(w)
		out[w] = domain.WalletChange{
			EthChange:   m.scale.FromScaled(sub(now.NetEthFlow, before.NetEthFlow)),
			TokenChange: m.scale.FromScaled(sub(now.TokenPosition, before.TokenPosition)),
		}
	}
	return out, nil
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		TokenReserve: copyInt(s.TokenReserve),
		EthReserve:   copyInt(s.EthReserve),
		Wallets:      append([]string(nil), s.Wallets...),
		Holdings:     make(map[string]domain.Holding, len(s.Holdings)),
		TakenAt:      s.TakenAt,
	}
	for w, h := range s.Holdings {
		out.Holdings[w] = domain.Holding{
			TokenPosition: copyInt(h.TokenPosition),
			NetEthFlow:    copyInt(h.NetEthFlow),
		}
	}
	return out
}

func sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(copyInt(a), copyInt(b))
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
