// Package amm implements constant-product pricing and trade execution
// against a pool.Ledger.
package amm

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ohikava/token-sandbox/internal/domain"
	"github.com/ohikava/token-sandbox/internal/pool"
	"github.com/ohikava/token-sandbox/pkg/fixedpoint"
)

const (
	defaultHistoryLimit = 10000
	priceChangeDigits   = 2
)

var hundred = decimal.NewFromInt(100)

// TradeSink receives every executed trade. Append is best effort: an error is
// logged and never fails the trade.
type TradeSink interface {
	Append(record domain.TradeRecord) error
}

// Executor prices and executes buys and sells. It is not safe for concurrent use.
type Executor struct {
	ledger *pool.Ledger
	scale  fixedpoint.Scale
	logger *zap.Logger
	sink   TradeSink
	now    func() time.Time

	initialPrice decimal.Decimal
	history      []domain.PricePoint
	historyLimit int
}

// Option configures an Executor.
type Option func(*Executor)

// WithSink sets the trade sink.
func WithSink(sink TradeSink) Option {
	return func(e *Executor) {
		e.sink = sink
	}
}

// WithClock overrides the time source used for trade records and price history.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// WithHistoryLimit caps the number of retained price points.
func WithHistoryLimit(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// NewExecutor creates an executor over ledger. The initial price is taken from
// the ledger's current reserves.
func NewExecutor(ledger *pool.Ledger, scale fixedpoint.Scale, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		ledger:       ledger,
		scale:        scale,
		logger:       logger,
		now:          time.Now,
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.initialPrice = e.CurrentPrice()
	e.recordPrice(e.initialPrice)
	return e
}

// QuoteBuy returns the tokens paid out for ethIn:
// tokenReserve - k / (ethReserve + ethIn).
func (e *Executor) QuoteBuy(ethIn *big.Int) (*big.Int, error) {
	if ethIn == nil || ethIn.Sign() <= 0 {
		return nil, errors.Wrapf(domain.ErrInvalidAmount, "eth input must be positive, got %s", e.scale.FromScaled(ethIn))
	}
	token, eth := e.ledger.Reserves()
	return amountOut(ethIn, eth, token), nil
}

// QuoteSell returns the ETH paid out for tokenIn:
// ethReserve - k / (tokenReserve + tokenIn).
func (e *Executor) QuoteSell(tokenIn *big.Int) (*big.Int, error) {
	if tokenIn == nil || tokenIn.Sign() <= 0 {
		return nil, errors.Wrapf(domain.ErrInvalidAmount, "token input must be positive, got %s", e.scale.FromScaled(tokenIn))
	}
	token, eth := e.ledger.Reserves()
	return amountOut(tokenIn, token, eth), nil
}

// Buy swaps ethIn for tokens on behalf of wallet.
// slippage is the acceptable price impact in percent. It is advisory: a breach
// is logged but the trade still executes.
func (e *Executor) Buy(wallet string, ethIn *big.Int, slippage decimal.Decimal) (domain.TradeRecord, error) {
	if slippage.IsNegative() {
		return domain.TradeRecord{}, errors.Wrapf(domain.ErrInvalidAmount, "slippage must not be negative, got %s", slippage)
	}
	tokenOut, err := e.QuoteBuy(ethIn)
	if err != nil {
		return domain.TradeRecord{}, err
	}

	priceBefore := e.CurrentPrice()
	deltaEth := new(big.Int).Sub(e.ledger.HoldingOf(wallet, domain.SideEth), ethIn)

	// the token side is the only one that can fail, so it goes first
	if err := e.ledger.AdjustReserve(domain.SideToken, new(big.Int).Neg(tokenOut)); err != nil {
		return domain.TradeRecord{}, errors.Wrap(err, "buy")
	}
	if err := e.ledger.AdjustReserve(domain.SideEth, ethIn); err != nil {
		return domain.TradeRecord{}, errors.Wrap(err, "buy")
	}
	e.ledger.AdjustHolding(wallet, domain.SideToken, tokenOut)
	e.ledger.AdjustHolding(wallet, domain.SideEth, new(big.Int).Neg(ethIn))

	record := e.settle(wallet, true, ethIn, tokenOut, priceBefore, slippage)
	e.logger.Info("BUY",
		zap.String("wallet", wallet),
		zap.String("eth", record.EthInput.String()),
		zap.String("token", record.TokenOutput.String()),
		zap.String("delta_eth", e.scale.FromScaled(deltaEth).String()),
		zap.String("price_change", record.PriceChange.String()+"%"))
	return record, nil
}

// Sell swaps tokenIn for ETH on behalf of wallet. See Buy for slippage.
func (e *Executor) Sell(wallet string, tokenIn *big.Int, slippage decimal.Decimal) (domain.TradeRecord, error) {
	if slippage.IsNegative() {
		return domain.TradeRecord{}, errors.Wrapf(domain.ErrInvalidAmount, "slippage must not be negative, got %s", slippage)
	}
	ethOut, err := e.QuoteSell(tokenIn)
	if err != nil {
		return domain.TradeRecord{}, err
	}

	priceBefore := e.CurrentPrice()
	deltaToken := new(big.Int).Sub(e.ledger.HoldingOf(wallet, domain.SideToken), tokenIn)

	if err := e.ledger.AdjustReserve(domain.SideEth, new(big.Int).Neg(ethOut)); err != nil {
		return domain.TradeRecord{}, errors.Wrap(err, "sell")
	}
	if err := e.ledger.AdjustReserve(domain.SideToken, tokenIn); err != nil {
		return domain.TradeRecord{}, errors.Wrap(err, "sell")
	}
	e.ledger.AdjustHolding(wallet, domain.SideToken, new(big.Int).Neg(tokenIn))
	e.ledger.AdjustHolding(wallet, domain.SideEth, ethOut)

	record := e.settle(wallet, false, ethOut, tokenIn, priceBefore, slippage)
	e.logger.Info("SELL",
		zap.String("wallet", wallet),
		zap.String("eth", record.EthInput.String()),
		zap.String("token", record.TokenOutput.String()),
		zap.String("delta_token", e.scale.FromScaled(deltaToken).String()),
		zap.String("price_change", record.PriceChange.String()+"%"))
	return record, nil
}

// CurrentPrice returns ethReserve / tokenReserve.
func (e *Executor) CurrentPrice() decimal.Decimal {
	token, eth := e.ledger.Reserves()
	return fixedpoint.Ratio(eth, token)
}

// InitialPrice returns the reference price used for price change reporting.
func (e *Executor) InitialPrice() decimal.Decimal {
	return e.initialPrice
}

// ResetInitialPrice re-derives the reference price from the current reserves.
func (e *Executor) ResetInitialPrice() decimal.Decimal {
	e.initialPrice = e.CurrentPrice()
	return e.initialPrice
}

// SetInitialPrice installs a previously saved reference price. A non-positive
// price re-derives it from the reserves.
func (e *Executor) SetInitialPrice(p decimal.Decimal) {
	if !p.IsPositive() {
		e.ResetInitialPrice()
		return
	}
	e.initialPrice = p
}

// PriceChange returns the percentage move of price against the initial price,
// truncated to two digits.
func (e *Executor) PriceChange(price decimal.Decimal) decimal.Decimal {
	if e.initialPrice.IsZero() {
		return decimal.Zero
	}
	return price.Sub(e.initialPrice).Div(e.initialPrice).Mul(hundred).Truncate(priceChangeDigits)
}

// History returns a copy of the recorded price points, oldest first.
func (e *Executor) History() []domain.PricePoint {
	out := make([]domain.PricePoint, len(e.history))
	copy(out, e.history)
	return out
}

// RecordPrice appends the current price to the history. Used after the ledger
// is changed outside of a trade (restore, import).
func (e *Executor) RecordPrice() {
	e.recordPrice(e.CurrentPrice())
}

func (e *Executor) settle(wallet string, isBuy bool, ethAmount, tokenAmount *big.Int, priceBefore, slippage decimal.Decimal) domain.TradeRecord {
	token, eth := e.ledger.Reserves()
	price := fixedpoint.Ratio(eth, token)
	e.recordPrice(price)

	if slippage.IsPositive() && !priceBefore.IsZero() {
		impact := price.Sub(priceBefore).Div(priceBefore).Mul(hundred).Abs()
		if impact.GreaterThan(slippage) {
			e.logger.Warn("price impact exceeds slippage bound",
				zap.String("wallet", wallet),
				zap.String("impact", impact.StringFixed(4)+"%"),
				zap.String("slippage", slippage.String()+"%"))
		}
	}

	record := domain.TradeRecord{
		ID:           uuid.New().String(),
		Wallet:       wallet,
		IsBuy:        isBuy,
		EthInput:     e.scale.FromScaled(ethAmount),
		TokenOutput:  e.scale.FromScaled(tokenAmount),
		TokenBalance: e.scale.FromScaled(token),
		EthBalance:   e.scale.FromScaled(eth),
		Price:        price,
		PriceChange:  e.PriceChange(price),
		Timestamp:    e.now(),
	}

	if e.sink != nil {
		if err := e.sink.Append(record); err != nil {
			e.logger.Warn("failed to append trade record", zap.String("id", record.ID), zap.Error(err))
		}
	}
	return record
}

func (e *Executor) recordPrice(price decimal.Decimal) {
	e.history = append(e.history, domain.PricePoint{Price: price, Timestamp: e.now()})
	if over := len(e.history) - e.historyLimit; over > 0 {
		e.history = append(e.history[:0:0], e.history[over:]...)
	}
}

// amountOut is reserveOut - reserveIn*reserveOut / (reserveIn + amountIn)
// on scaled integers.
func amountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	k := new(big.Int).Mul(reserveIn, reserveOut)
	den := new(big.Int).Add(reserveIn, amountIn)
	k.Quo(k, den)
	return k.Sub(reserveOut, k)
}
