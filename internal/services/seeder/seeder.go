// Package seeder funds synthetic wallets and drives a prefix of them through
// the executor to give the pool a non-trivial starting state.
package seeder

import (
	"math"
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ohikava/token-sandbox/internal/domain"
	"github.com/ohikava/token-sandbox/internal/pool"
	"github.com/ohikava/token-sandbox/internal/services/amm"
	"github.com/ohikava/token-sandbox/pkg/fixedpoint"
)

// Snapshotter captures the ledger once seeding is done.
type Snapshotter interface {
	Capture()
}

// Result summarizes a distribution pass.
type Result struct {
	WalletsWithTokens    int                  `json:"walletsWithTokens"`
	WalletsWithoutTokens int                  `json:"walletsWithoutTokens"`
	PriceBefore          decimal.Decimal      `json:"priceBefore"`
	PriceAfter           decimal.Decimal      `json:"priceAfter"`
	PriceChange          decimal.Decimal      `json:"priceChange"`
	Trades               []domain.TradeRecord `json:"trades"`
}

// Seeder runs distribution passes against one ledger.
type Seeder struct {
	ledger   *pool.Ledger
	executor *amm.Executor
	snapshot Snapshotter
	sampler  Sampler
	scale    fixedpoint.Scale
	logger   *zap.Logger
}

// New creates a seeder.
func New(ledger *pool.Ledger, executor *amm.Executor, snapshot Snapshotter, sampler Sampler, scale fixedpoint.Scale, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{
		ledger:   ledger,
		executor: executor,
		snapshot: snapshot,
		sampler:  sampler,
		scale:    scale,
		logger:   logger,
	}
}

// Distribute credits every wallet a sampled ETH amount, then makes the first
// round(N*(1-noTokenRatio)) wallets buy with their whole ETH holding, one after
// the other. Each buy moves the price seen by the next wallet. Afterwards the
// initial price is re-derived and a snapshot is captured.
//
// If a buy fails halfway the ledger is rolled back to its state before the call.
func (s *Seeder) Distribute(minEth, maxEth decimal.Decimal, noTokenRatio float64, wallets []string) (Result, error) {
	if math.IsNaN(noTokenRatio) || noTokenRatio < 0 || noTokenRatio > 1 {
		return Result{}, errors.Wrapf(domain.ErrInvalidRatio, "got %v", noTokenRatio)
	}
	if minEth.IsNegative() || minEth.GreaterThan(maxEth) {
		return Result{}, errors.Wrapf(domain.ErrInvalidAmount, "eth range [%s, %s]", minEth, maxEth)
	}
	if len(wallets) == 0 {
		return Result{}, errors.Wrap(domain.ErrInvalidAmount, "wallet list is empty")
	}

	n := len(wallets)
	withTokens := int(math.Round(float64(n) * (1 - noTokenRatio)))
	res := Result{
		WalletsWithTokens:    withTokens,
		WalletsWithoutTokens: n - withTokens,
	}
	s.logger.Info("distributing holdings",
		zap.Int("walletsWithTokens", res.WalletsWithTokens),
		zap.Int("walletsWithoutTokens", res.WalletsWithoutTokens))

	restore := s.checkpoint()

	for _, w := range wallets {
		amount := s.scale.ToScaled(s.sampler.Sample(minEth, maxEth))
		s.ledger.AdjustHolding(w, domain.SideEth, amount)
	}

	res.PriceBefore = s.executor.CurrentPrice()
	s.logger.Info("token price before distribution", zap.String("price", res.PriceBefore.String()))

	for _, w := range wallets[:withTokens] {
		ethIn := s.ledger.HoldingOf(w, domain.SideEth)
		if ethIn.Sign() <= 0 {
			s.logger.Warn("wallet has no ETH to buy with", zap.String("wallet", w))
			continue
		}
		record, err := s.executor.Buy(w, ethIn, decimal.Zero)
		if err != nil {
			if rerr := restore(); rerr != nil {
				s.logger.Error("failed to roll back distribution", zap.Error(rerr))
			}
			return Result{}, errors.Wrapf(err, "distribute: buy for %s", w)
		}
		res.Trades = append(res.Trades, record)
	}

	res.PriceAfter = s.executor.CurrentPrice()
	if !res.PriceBefore.IsZero() {
		res.PriceChange = res.PriceAfter.Sub(res.PriceBefore).Div(res.PriceBefore).Mul(decimal.NewFromInt(100))
	}
	s.logger.Info("token price after distribution",
		zap.String("price", res.PriceAfter.String()),
		zap.String("change", res.PriceChange.StringFixed(4)+"%"))

	s.executor.ResetInitialPrice()
	if s.snapshot != nil {
		s.snapshot.Capture()
	}
	return res, nil
}

// checkpoint copies the ledger and returns a func putting it back.
func (s *Seeder) checkpoint() func() error {
	token, eth := s.ledger.Reserves()
	wallets := s.ledger.Wallets()
	holdings := make(map[string]domain.Holding, len(wallets))
	for _, w := range wallets {
		holdings[w] = s.ledger.Holdings(w)
	}
	return func() error {
		return s.ledger.Replace(new(big.Int).Set(token), new(big.Int).Set(eth), wallets, holdings)
	}
}
