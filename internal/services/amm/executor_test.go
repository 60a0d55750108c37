package amm

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/ohikava/token-sandbox/internal/domain"
	"github.com/ohikava/token-sandbox/internal/pool"
	"github.com/ohikava/token-sandbox/pkg/fixedpoint"
)

var scale = fixedpoint.NewScale(18)

type recordingSink struct {
	records []domain.TradeRecord
	err     error
}

func (s *recordingSink) Append(record domain.TradeRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func eth(v string) *big.Int {
	return scale.ToScaled(decimal.RequireFromString(v))
}

type testingT interface {
	require.TestingT
	Helper()
}

func newExecutor(t testingT, token, ethReserve string, opts ...Option) (*Executor, *pool.Ledger) {
	t.Helper()
	ledger, err := pool.New(eth(token), eth(ethReserve))
	require.NoError(t, err)
	return NewExecutor(ledger, scale, zap.NewNop(), opts...), ledger
}

func product(l *pool.Ledger) *big.Int {
	token, ethR := l.Reserves()
	return new(big.Int).Mul(token, ethR)
}

func TestExecutor_QuoteRejectsNonPositive(t *testing.T) {
	e, _ := newExecutor(t, "100", "100")

	for _, in := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
		_, err := e.QuoteBuy(in)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		_, err = e.QuoteSell(in)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	}
}

func TestExecutor_BuyConcreteScenario(t *testing.T) {
	e, ledger := newExecutor(t, "100", "100")
	kBefore := product(ledger)

	quote, err := e.QuoteBuy(eth("10"))
	require.NoError(t, err)
	assert.Equal(t, "9090909090909090910", quote.String())

	record, err := e.Buy("w", eth("10"), decimal.Zero)
	require.NoError(t, err)

	token, ethR := ledger.Reserves()
	assert.Equal(t, eth("110").String(), ethR.String())
	assert.Equal(t, "90909090909090909090", token.String())
	assert.Equal(t, quote.String(), ledger.HoldingOf("w", domain.SideToken).String())
	assert.Equal(t, eth("-10").String(), ledger.HoldingOf("w", domain.SideEth).String())

	assert.True(t, record.IsBuy)
	assert.Equal(t, "w", record.Wallet)
	assert.True(t, record.EthInput.Equal(decimal.NewFromInt(10)))
	assert.True(t, record.TokenOutput.Equal(scale.FromScaled(quote)))
	assert.True(t, record.EthBalance.Equal(decimal.NewFromInt(110)))
	assert.InDelta(t, 1.21, record.Price.InexactFloat64(), 1e-9)
	assert.True(t, record.PriceChange.Equal(decimal.RequireFromString("21")), record.PriceChange.String())
	assert.NotEmpty(t, record.ID)

	// k may only shrink by less than the new ETH reserve (one scaled unit of the quotient)
	diff := new(big.Int).Sub(kBefore, product(ledger))
	assert.GreaterOrEqual(t, diff.Sign(), 0)
	assert.Equal(t, -1, diff.Cmp(ethR))
}

func TestExecutor_SellRoundTrip(t *testing.T) {
	e, ledger := newExecutor(t, "100", "100")

	_, err := e.Buy("w", eth("10"), decimal.Zero)
	require.NoError(t, err)

	tokens := ledger.HoldingOf("w", domain.SideToken)
	record, err := e.Sell("w", tokens, decimal.Zero)
	require.NoError(t, err)
	assert.False(t, record.IsBuy)

	token, ethR := ledger.Reserves()
	assert.Equal(t, eth("100").String(), token.String())

	ethDiff := new(big.Int).Sub(eth("100"), ethR)
	assert.LessOrEqual(t, new(big.Int).Abs(ethDiff).Cmp(big.NewInt(1)), 0, "eth reserve %s", ethR)

	assert.Equal(t, 0, ledger.HoldingOf("w", domain.SideToken).Sign())
	assert.LessOrEqual(t, new(big.Int).Abs(ledger.HoldingOf("w", domain.SideEth)).Cmp(big.NewInt(1)), 0)
}

func TestExecutor_SellConservation(t *testing.T) {
	e, ledger := newExecutor(t, "1000", "50")

	tokenBefore, ethBefore := ledger.Reserves()
	quote, err := e.QuoteSell(eth("25"))
	require.NoError(t, err)

	_, err = e.Sell("seller", eth("25"), decimal.Zero)
	require.NoError(t, err)

	tokenAfter, ethAfter := ledger.Reserves()
	assert.Equal(t, new(big.Int).Add(tokenBefore, eth("25")).String(), tokenAfter.String())
	assert.Equal(t, new(big.Int).Sub(ethBefore, quote).String(), ethAfter.String())
	assert.Equal(t, quote.String(), ledger.HoldingOf("seller", domain.SideEth).String())
	assert.Equal(t, eth("-25").String(), ledger.HoldingOf("seller", domain.SideToken).String())
}

func TestExecutor_FailedTradeLeavesLedgerUnchanged(t *testing.T) {
	e, ledger := newExecutor(t, "1", "1")

	tokenBefore, ethBefore := ledger.Reserves()

	// a huge buy drives k/(eth+in) to zero and would drain the token reserve
	huge := new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil)
	_, err := e.Buy("w", huge, decimal.Zero)
	require.ErrorIs(t, err, domain.ErrInvariantViolation)

	_, err = e.Buy("w", eth("-1"), decimal.Zero)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.Sell("w", eth("1"), decimal.NewFromInt(-1))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	tokenAfter, ethAfter := ledger.Reserves()
	assert.Equal(t, tokenBefore.String(), tokenAfter.String())
	assert.Equal(t, ethBefore.String(), ethAfter.String())
	assert.Empty(t, ledger.Wallets())
	assert.Len(t, e.History(), 1)
}

func TestExecutor_SinkFailureDoesNotAbortTrade(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e, ledger := newExecutor(t, "100", "100", WithSink(sink), WithClock(func() time.Time { return fixed }))

	record, err := e.Buy("w", eth("1"), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, sink.records, 1)
	assert.Equal(t, record.ID, sink.records[0].ID)
	assert.Equal(t, fixed, record.Timestamp)

	_, ethR := ledger.Reserves()
	assert.Equal(t, eth("101").String(), ethR.String())
}

func TestExecutor_SlippageIsAdvisory(t *testing.T) {
	e, _ := newExecutor(t, "100", "100")

	// a 50% ETH injection moves the price far beyond 0.1%, the trade still goes through
	_, err := e.Buy("w", eth("50"), decimal.RequireFromString("0.1"))
	require.NoError(t, err)
}

func TestExecutor_InitialPriceAndHistory(t *testing.T) {
	e, _ := newExecutor(t, "200", "100", WithHistoryLimit(2))

	assert.True(t, e.InitialPrice().Equal(decimal.RequireFromString("0.5")))

	_, err := e.Buy("a", eth("1"), decimal.Zero)
	require.NoError(t, err)
	_, err = e.Buy("b", eth("1"), decimal.Zero)
	require.NoError(t, err)

	history := e.History()
	require.Len(t, history, 2)
	assert.True(t, history[1].Price.GreaterThan(history[0].Price))

	reset := e.ResetInitialPrice()
	assert.True(t, reset.Equal(e.CurrentPrice()))
	assert.True(t, e.PriceChange(e.CurrentPrice()).IsZero())
}

func TestExecutor_KInvariantProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, ledger := newExecutor(t, "1000000", "500")
		steps := rapid.IntRange(1, 20).Draw(t, "steps")

		for i := 0; i < steps; i++ {
			kBefore := product(ledger)
			isBuy := rapid.Bool().Draw(t, "isBuy")
			milli := rapid.Int64Range(1, 50_000).Draw(t, "milli")
			amount := new(big.Int).Mul(big.NewInt(milli), big.NewInt(1_000_000_000_000_000))

			var err error
			if isBuy {
				_, err = e.Buy("w", amount, decimal.Zero)
			} else {
				_, err = e.Sell("w", new(big.Int).Mul(amount, big.NewInt(1000)), decimal.Zero)
			}
			if err != nil {
				t.Fatalf("trade %d failed: %v", i, err)
			}

			token, ethR := ledger.Reserves()
			bound := ethR
			if !isBuy {
				bound = token
			}
			diff := new(big.Int).Sub(kBefore, product(ledger))
			if diff.Sign() < 0 || diff.Cmp(bound) >= 0 {
				t.Fatalf("k drifted by %s (bound %s)", diff, bound)
			}
		}
	})
}

func TestExecutor_MonotonicPriceImpactProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, _ := newExecutor(t, "1000000", "500")
		isBuy := rapid.Bool().Draw(t, "isBuy")
		steps := rapid.IntRange(2, 10).Draw(t, "steps")

		prev := e.CurrentPrice()
		for i := 0; i < steps; i++ {
			milli := rapid.Int64Range(1, 10_000).Draw(t, "milli")
			amount := new(big.Int).Mul(big.NewInt(milli), big.NewInt(1_000_000_000_000_000))
			if isBuy {
				_, err := e.Buy("w", amount, decimal.Zero)
				require.NoError(t, err)
			} else {
				_, err := e.Sell("w", new(big.Int).Mul(amount, big.NewInt(1000)), decimal.Zero)
				require.NoError(t, err)
			}

			cur := e.CurrentPrice()
			if isBuy && !cur.GreaterThan(prev) {
				t.Fatalf("buy did not raise price: %s -> %s", prev, cur)
			}
			if !isBuy && !cur.LessThan(prev) {
				t.Fatalf("sell did not lower price: %s -> %s", prev, cur)
			}
			prev = cur
		}
	})
}
