// Package sandbox is one simulation session: a pool ledger with its executor,
// seeder and snapshot manager, exposed through a single operation surface.
//
// A Sandbox does no locking. Callers sharing it across goroutines must
// serialize every call, for example through dispatch.Queue.
package sandbox

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ohikava/token-sandbox/internal/domain"
	"github.com/ohikava/token-sandbox/internal/pool"
	"github.com/ohikava/token-sandbox/internal/services/amm"
	"github.com/ohikava/token-sandbox/internal/services/indicators"
	"github.com/ohikava/token-sandbox/internal/services/seeder"
	"github.com/ohikava/token-sandbox/internal/services/snapshot"
	"github.com/ohikava/token-sandbox/pkg/fixedpoint"
)

// Config holds the pool parameters of a session. GasPrice is the constant
// reported by GetGasPrice. Seed drives the ETH sampler; zero seeds from the clock.
type Config struct {
	TokenSupply  decimal.Decimal
	EthLiquidity decimal.Decimal
	Decimals     int32
	GasPrice     decimal.Decimal
	HistoryLimit int
	Seed         int64
}

// DefaultConfig mirrors the stock sandbox deployment.
func DefaultConfig() Config {
	return Config{
		TokenSupply:  decimal.NewFromInt(14520427),
		EthLiquidity: decimal.NewFromInt(170),
		Decimals:     fixedpoint.DefaultDecimals,
		GasPrice:     decimal.RequireFromString("2.1"),
		HistoryLimit: 10000,
	}
}

type options struct {
	logger  *zap.Logger
	sink    amm.TradeSink
	sampler seeder.Sampler
	clock   func() time.Time
	periods indicators.Periods
}

// Option configures a Sandbox.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTradeSink receives every executed trade.
func WithTradeSink(s amm.TradeSink) Option {
	return func(o *options) { o.sink = s }
}

// WithSampler replaces the uniform ETH sampler used by DistributeHoldings.
func WithSampler(s seeder.Sampler) Option {
	return func(o *options) { o.sampler = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithIndicatorPeriods overrides the indicator windows.
func WithIndicatorPeriods(p indicators.Periods) Option {
	return func(o *options) { o.periods = p }
}

// Sandbox is one simulation session.
type Sandbox struct {
	cfg     Config
	scale   fixedpoint.Scale
	logger  *zap.Logger
	periods indicators.Periods

	ledger    *pool.Ledger
	executor  *amm.Executor
	seeder    *seeder.Seeder
	snapshots *snapshot.Manager
}

// New creates a session with a fresh pool.
func New(cfg Config, opts ...Option) (*Sandbox, error) {
	o := options{
		logger:  zap.NewNop(),
		periods: indicators.DefaultPeriods(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sampler == nil {
		o.sampler = seeder.NewUniformSampler(cfg.Seed)
	}

	scale := fixedpoint.NewScale(cfg.Decimals)
	ledger, err := pool.New(scale.ToScaled(cfg.TokenSupply), scale.ToScaled(cfg.EthLiquidity))
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}

	execOpts := []amm.Option{amm.WithHistoryLimit(cfg.HistoryLimit)}
	if o.sink != nil {
		execOpts = append(execOpts, amm.WithSink(o.sink))
	}
	if o.clock != nil {
		execOpts = append(execOpts, amm.WithClock(o.clock))
	}
	executor := amm.NewExecutor(ledger, scale, o.logger, execOpts...)
	snapshots := snapshot.NewManager(ledger, scale, o.logger)

	s := &Sandbox{
		cfg:       cfg,
		scale:     scale,
		logger:    o.logger,
		periods:   o.periods,
		ledger:    ledger,
		executor:  executor,
		seeder:    seeder.New(ledger, executor, snapshots, o.sampler, scale, o.logger),
		snapshots: snapshots,
	}

	s.logger.Info("sandbox created",
		zap.String("token_supply", cfg.TokenSupply.String()),
		zap.String("eth_liquidity", cfg.EthLiquidity.String()),
		zap.Int32("decimals", scale.Decimals()),
		zap.String("price", executor.CurrentPrice().String()))
	return s, nil
}

// Buy spends amount ETH from wallet on tokens.
func (s *Sandbox) Buy(wallet string, amount, slippage decimal.Decimal) (domain.TradeRecord, error) {
	if err := checkWallet(wallet); err != nil {
		return domain.TradeRecord{}, err
	}
	return s.executor.Buy(wallet, s.scale.ToScaled(amount), slippage)
}

// Sell sells amount tokens from wallet for ETH.
func (s *Sandbox) Sell(wallet string, amount, slippage decimal.Decimal) (domain.TradeRecord, error) {
	if err := checkWallet(wallet); err != nil {
		return domain.TradeRecord{}, err
	}
	return s.executor.Sell(wallet, s.scale.ToScaled(amount), slippage)
}

// DistributeHoldings seeds wallets; see seeder.Seeder.Distribute.
func (s *Sandbox) DistributeHoldings(minEth, maxEth decimal.Decimal, noTokenRatio float64, wallets []string) (seeder.Result, error) {
	for _, w := range wallets {
		if err := checkWallet(w); err != nil {
			return seeder.Result{}, err
		}
	}
	return s.seeder.Distribute(minEth, maxEth, noTokenRatio, wallets)
}

// GetPrice returns ethReserve / tokenReserve.
func (s *Sandbox) GetPrice() decimal.Decimal {
	return s.executor.CurrentPrice()
}

// GetReserves returns both pool reserves.
func (s *Sandbox) GetReserves() domain.Reserves {
	token, eth := s.ledger.Reserves()
	return domain.Reserves{Token: s.scale.FromScaled(token), Eth: s.scale.FromScaled(eth)}
}

// GetBalance returns the wallet's net ETH flow, zero if unseen.
func (s *Sandbox) GetBalance(wallet string) decimal.Decimal {
	return s.scale.FromScaled(s.ledger.HoldingOf(wallet, domain.SideEth))
}

// GetTokenBalance returns the wallet's token position, zero if unseen.
func (s *Sandbox) GetTokenBalance(wallet string) decimal.Decimal {
	return s.scale.FromScaled(s.ledger.HoldingOf(wallet, domain.SideToken))
}

// GetAllWallets lists every wallet with a recorded holding, first seen first.
func (s *Sandbox) GetAllWallets() []string {
	return s.ledger.Wallets()
}

// GetAllBalances lists both positions of every wallet.
func (s *Sandbox) GetAllBalances() []domain.WalletBalance {
	wallets := s.ledger.Wallets()
	out := make([]domain.WalletBalance, 0, len(wallets))
	for _, w := range wallets {
		h := s.ledger.Holdings(w)
		out = append(out, domain.WalletBalance{
			Address:      w,
			EthBalance:   s.scale.FromScaled(h.NetEthFlow),
			TokenBalance: s.scale.FromScaled(h.TokenPosition),
		})
	}
	return out
}

// Snapshot captures the current state as the restore point.
func (s *Sandbox) Snapshot() {
	s.snapshots.Capture()
}

// ReloadState restores the last snapshot.
func (s *Sandbox) ReloadState() error {
	if err := s.snapshots.Restore(); err != nil {
		return err
	}
	s.executor.RecordPrice()
	return nil
}

// GetWalletChanges returns position deltas since the last snapshot.
func (s *Sandbox) GetWalletChanges() (map[string]domain.WalletChange, error) {
	return s.snapshots.Diff()
}

// GetGasPrice returns the configured constant gas price.
func (s *Sandbox) GetGasPrice() decimal.Decimal {
	return s.cfg.GasPrice
}

// PriceHistory returns recorded prices, oldest first.
func (s *Sandbox) PriceHistory() []domain.PricePoint {
	return s.executor.History()
}

// Indicators summarizes the price history.
func (s *Sandbox) Indicators() indicators.Summary {
	return indicators.Summarize(s.executor.History(), s.periods)
}

// GenerateWallets returns n synthetic wallet addresses. They enter the ledger
// only once they trade or get distributed ETH.
func (s *Sandbox) GenerateWallets(n int) ([]string, error) {
	return seeder.GenerateWallets(n)
}

func checkWallet(wallet string) error {
	if strings.TrimSpace(wallet) == "" {
		return domain.ErrInvalidWallet
	}
	return nil
}
