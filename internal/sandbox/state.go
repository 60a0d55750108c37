package sandbox

import (
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ohikava/token-sandbox/internal/domain"
	"github.com/ohikava/token-sandbox/internal/services/snapshot"
	"github.com/ohikava/token-sandbox/internal/storage/simstate"
)

// ExportState serializes the session: reserves, wallets, initial price and
// the snapshot if one was captured.
func (s *Sandbox) ExportState() simstate.State {
	token, eth := s.ledger.Reserves()
	state := simstate.State{
		SavedAt:      time.Now().UTC(),
		Decimals:     s.scale.Decimals(),
		TokenReserve: s.scale.FromScaled(token).String(),
		EthReserve:   s.scale.FromScaled(eth).String(),
		InitialPrice: s.executor.InitialPrice().String(),
	}

	wallets := s.ledger.Wallets()
	state.Wallets = make([]simstate.StoredWallet, 0, len(wallets))
	for _, w := range wallets {
		state.Wallets = append(state.Wallets, s.storedWallet(w, s.ledger.Holdings(w)))
	}

	if snap, err := s.snapshots.Snapshot(); err == nil {
		stored := &simstate.StoredSnapshot{
			TakenAt:      snap.TakenAt,
			TokenReserve: s.scale.FromScaled(snap.TokenReserve).String(),
			EthReserve:   s.scale.FromScaled(snap.EthReserve).String(),
			Wallets:      make([]simstate.StoredWallet, 0, len(snap.Wallets)),
		}
		for _, w := range snap.Wallets {
			stored.Wallets = append(stored.Wallets, s.storedWallet(w, snap.Holdings[w]))
		}
		state.Snapshot = stored
	}

	return state
}

// ImportState replaces the session with a previously exported state.
// Nothing is changed if the state does not decode.
func (s *Sandbox) ImportState(state simstate.State) error {
	if state.Decimals != 0 && state.Decimals != s.scale.Decimals() {
		return errors.Errorf("state uses %d decimals, session uses %d", state.Decimals, s.scale.Decimals())
	}

	token, eth, err := s.parseReserves(state.TokenReserve, state.EthReserve)
	if err != nil {
		return err
	}
	order, holdings, err := s.parseWallets(state.Wallets)
	if err != nil {
		return err
	}
	initial, err := parseDecimal("initial price", state.InitialPrice)
	if err != nil {
		return err
	}

	var snap *snapshot.Snapshot
	if state.Snapshot != nil {
		st, se, err := s.parseReserves(state.Snapshot.TokenReserve, state.Snapshot.EthReserve)
		if err != nil {
			return errors.Wrap(err, "snapshot")
		}
		so, sh, err := s.parseWallets(state.Snapshot.Wallets)
		if err != nil {
			return errors.Wrap(err, "snapshot")
		}
		snap = &snapshot.Snapshot{TokenReserve: st, EthReserve: se, Wallets: so, Holdings: sh, TakenAt: state.Snapshot.TakenAt}
	}

	if err := s.ledger.Replace(token, eth, order, holdings); err != nil {
		return errors.Wrap(err, "import state")
	}
	if snap != nil {
		s.snapshots.Load(*snap)
	}
	s.executor.SetInitialPrice(initial)
	s.executor.RecordPrice()

	s.logger.Info("sandbox state imported",
		zap.Int("wallets", len(order)),
		zap.Bool("snapshot", snap != nil),
		zap.String("price", s.executor.CurrentPrice().String()))
	return nil
}

func (s *Sandbox) storedWallet(w string, h domain.Holding) simstate.StoredWallet {
	return simstate.StoredWallet{
		Address:       w,
		TokenPosition: s.scale.FromScaled(h.TokenPosition).String(),
		NetEthFlow:    s.scale.FromScaled(h.NetEthFlow).String(),
	}
}

func (s *Sandbox) parseReserves(tokenStr, ethStr string) (*big.Int, *big.Int, error) {
	token, err := parseDecimal("token reserve", tokenStr)
	if err != nil {
		return nil, nil, err
	}
	eth, err := parseDecimal("eth reserve", ethStr)
	if err != nil {
		return nil, nil, err
	}
	return s.scale.ToScaled(token), s.scale.ToScaled(eth), nil
}

func (s *Sandbox) parseWallets(stored []simstate.StoredWallet) ([]string, map[string]domain.Holding, error) {
	order := make([]string, 0, len(stored))
	holdings := make(map[string]domain.Holding, len(stored))
	for _, w := range stored {
		tok, err := parseDecimal("token position of "+w.Address, w.TokenPosition)
		if err != nil {
			return nil, nil, err
		}
		flow, err := parseDecimal("net eth flow of "+w.Address, w.NetEthFlow)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := holdings[w.Address]; !dup {
			order = append(order, w.Address)
		}
		holdings[w.Address] = domain.Holding{
			TokenPosition: s.scale.ToScaled(tok),
			NetEthFlow:    s.scale.ToScaled(flow),
		}
	}
	return order, holdings, nil
}

func parseDecimal(field, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "decode %s", field)
	}
	return d, nil
}
