package indicators

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohikava/token-sandbox/internal/domain"
)

// rising climbs by 2 per point with a 3 point dip every third point.
func rising(n int, step time.Duration) []domain.PricePoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.PricePoint, n)
	for i := range out {
		p := int64(100 + 2*i)
		if i%3 == 0 {
			p -= 3
		}
		out[i] = domain.PricePoint{
			Price:     decimal.NewFromInt(p),
			Timestamp: start.Add(time.Duration(i) * step),
		}
	}
	return out
}

func TestCalculateEMA(t *testing.T) {
	closes := []decimal.Decimal{
		decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.NewFromInt(3),
		decimal.NewFromInt(4), decimal.NewFromInt(5),
	}

	ema, err := CalculateEMA(closes, 3)
	require.NoError(t, err)
	require.NotEmpty(t, ema)
	assert.True(t, ema[len(ema)-1].GreaterThan(decimal.NewFromInt(3)))
	assert.True(t, ema[len(ema)-1].LessThanOrEqual(decimal.NewFromInt(5)))

	_, err = CalculateEMA(closes, 10)
	assert.Error(t, err)
}

func TestCalculateRSI_NotEnoughData(t *testing.T) {
	_, err := CalculateRSI([]decimal.Decimal{decimal.NewFromInt(1)}, 14)
	assert.Error(t, err)
}

func TestCandles(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []domain.PricePoint{
		{Price: decimal.NewFromInt(10), Timestamp: base},
		{Price: decimal.NewFromInt(12), Timestamp: base.Add(200 * time.Millisecond)},
		{Price: decimal.NewFromInt(9), Timestamp: base.Add(400 * time.Millisecond)},
		{Price: decimal.NewFromInt(11), Timestamp: base.Add(1500 * time.Millisecond)},
	}

	candles := Candles(history, time.Second)
	require.Len(t, candles, 2)

	assert.True(t, candles[0].Open.Equal(decimal.NewFromInt(10)))
	assert.True(t, candles[0].High.Equal(decimal.NewFromInt(12)))
	assert.True(t, candles[0].Low.Equal(decimal.NewFromInt(9)))
	assert.True(t, candles[0].Close.Equal(decimal.NewFromInt(9)))
	assert.True(t, candles[1].Close.Equal(decimal.NewFromInt(11)))
}

func TestSummarize(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		s := Summarize(nil, DefaultPeriods())
		assert.Zero(t, s.Points)
		assert.Nil(t, s.EMAShort)
		assert.Nil(t, s.RSI)
	})

	t.Run("short history only gets short ema", func(t *testing.T) {
		s := Summarize(rising(6, time.Second), DefaultPeriods())
		assert.Equal(t, 6, s.Points)
		assert.True(t, s.Last.Equal(decimal.NewFromInt(110)))
		assert.NotNil(t, s.EMAShort)
		assert.Nil(t, s.EMALong)
		assert.Nil(t, s.MACD)
		assert.Nil(t, s.ATR)
	})

	t.Run("long rising history", func(t *testing.T) {
		s := Summarize(rising(60, time.Second), DefaultPeriods())
		require.NotNil(t, s.EMAShort)
		require.NotNil(t, s.EMALong)
		require.NotNil(t, s.MACD)
		require.NotNil(t, s.RSI)
		require.NotNil(t, s.ATR)

		assert.True(t, s.EMAShort.GreaterThan(*s.EMALong), "short ema leads on a rising series")
		assert.True(t, s.MACD.IsPositive())
		assert.True(t, s.RSI.GreaterThan(decimal.NewFromInt(50)))
	})
}
