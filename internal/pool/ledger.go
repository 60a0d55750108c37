// Package pool holds the AMM ledger: the two pool reserves and the per-wallet
// positions. Every mutation of reserves or holdings goes through Ledger.
//
// The ledger does no locking. Callers that share it across goroutines must
// serialize mutating calls themselves.
package pool

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/ohikava/token-sandbox/internal/domain"
)

// Ledger owns the reserves and the wallet holding maps.
type Ledger struct {
	tokenReserve *big.Int
	ethReserve   *big.Int

	tokenPosition map[string]*big.Int
	netEthFlow    map[string]*big.Int
	// wallets keeps first-seen order for listing.
	wallets []string
}

// New creates a ledger seeded with the given scaled reserves.
func New(tokenReserve, ethReserve *big.Int) (*Ledger, error) {
	if tokenReserve == nil || tokenReserve.Sign() <= 0 {
		return nil, errors.Wrap(domain.ErrInvariantViolation, "initial token reserve")
	}
	if ethReserve == nil || ethReserve.Sign() <= 0 {
		return nil, errors.Wrap(domain.ErrInvariantViolation, "initial eth reserve")
	}

	return &Ledger{
		tokenReserve:  new(big.Int).Set(tokenReserve),
		ethReserve:    new(big.Int).Set(ethReserve),
		tokenPosition: make(map[string]*big.Int),
		netEthFlow:    make(map[string]*big.Int),
	}, nil
}

// Reserves returns copies of the current token and ETH reserves.
func (l *Ledger) Reserves() (token, eth *big.Int) {
	return new(big.Int).Set(l.tokenReserve), new(big.Int).Set(l.ethReserve)
}

// HoldingOf returns the wallet position for side, zero if the wallet is unseen.
func (l *Ledger) HoldingOf(wallet string, side domain.Side) *big.Int {
	v, ok := l.holdings(side)[wallet]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// Holdings returns both positions of wallet.
func (l *Ledger) Holdings(wallet string) domain.Holding {
	return domain.Holding{
		TokenPosition: l.HoldingOf(wallet, domain.SideToken),
		NetEthFlow:    l.HoldingOf(wallet, domain.SideEth),
	}
}

// AdjustHolding adds a signed delta to the wallet position, creating it if absent.
// No bounds are enforced.
func (l *Ledger) AdjustHolding(wallet string, side domain.Side, delta *big.Int) {
	m := l.holdings(side)
	cur, ok := m[wallet]
	if !ok {
		cur = new(big.Int)
		m[wallet] = cur
		l.track(wallet)
	}
	cur.Add(cur, delta)
}

// AdjustReserve applies a signed delta to a reserve. It fails with
// domain.ErrInvariantViolation, leaving the reserve untouched, if the result
// would not be strictly positive.
func (l *Ledger) AdjustReserve(side domain.Side, delta *big.Int) error {
	reserve := l.reserve(side)
	next := new(big.Int).Add(reserve, delta)
	if next.Sign() <= 0 {
		return errors.Wrapf(domain.ErrInvariantViolation, "%s reserve %s + %s", side, reserve, delta)
	}
	reserve.Set(next)
	return nil
}

// Wallets returns every wallet with a recorded holding, in first-seen order.
func (l *Ledger) Wallets() []string {
	out := make([]string, len(l.wallets))
	copy(out, l.wallets)
	return out
}

// Known reports whether the wallet has any recorded holding.
func (l *Ledger) Known(wallet string) bool {
	_, tok := l.tokenPosition[wallet]
	_, eth := l.netEthFlow[wallet]
	return tok || eth
}

// Replace overwrites reserves and holdings wholesale. Wallets missing from
// holdings disappear from the ledger. Used by snapshot restore and state import.
func (l *Ledger) Replace(tokenReserve, ethReserve *big.Int, wallets []string, holdings map[string]domain.Holding) error {
	if tokenReserve == nil || tokenReserve.Sign() <= 0 || ethReserve == nil || ethReserve.Sign() <= 0 {
		return errors.Wrap(domain.ErrInvariantViolation, "replace reserves")
	}

	l.tokenReserve = new(big.Int).Set(tokenReserve)
	l.ethReserve = new(big.Int).Set(ethReserve)
	l.tokenPosition = make(map[string]*big.Int, len(holdings))
	l.netEthFlow = make(map[string]*big.Int, len(holdings))
	l.wallets = make([]string, 0, len(wallets))

	for _, w := range wallets {
		h, ok := holdings[w]
		if !ok {
			continue
		}
		l.tokenPosition[w] = copyOrZero(h.TokenPosition)
		l.netEthFlow[w] = copyOrZero(h.NetEthFlow)
		l.wallets = append(l.wallets, w)
	}
	return nil
}

func (l *Ledger) holdings(side domain.Side) map[string]*big.Int {
	if side == domain.SideToken {
		return l.tokenPosition
	}
	return l.netEthFlow
}

func (l *Ledger) reserve(side domain.Side) *big.Int {
	if side == domain.SideToken {
		return l.tokenReserve
	}
	return l.ethReserve
}

func (l *Ledger) track(wallet string) {
	_, tok := l.tokenPosition[wallet]
	_, eth := l.netEthFlow[wallet]
	// the entry that was just inserted is one of the two; a wallet is new only if the other is absent
	if tok && eth {
		return
	}
	l.wallets = append(l.wallets, wallet)
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
