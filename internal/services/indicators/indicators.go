// Package indicators computes technical indicators over the sandbox price history.
// It uses the cinar/indicator library for EMA, MACD, RSI and ATR. The history
// is a tick series, so ATR runs on candles built by bucketing ticks in time.
package indicators

import (
	"fmt"
	"math"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/shopspring/decimal"

	"github.com/ohikava/token-sandbox/internal/domain"
)

const macdMinPoints = 26

// Periods configures the indicator windows.
type Periods struct {
	EMAShort int
	EMALong  int
	RSI      int
	ATR      int
	// CandleInterval buckets price points into candles for ATR.
	CandleInterval time.Duration
}

// DefaultPeriods suits short sandbox sessions.
func DefaultPeriods() Periods {
	return Periods{
		EMAShort:       5,
		EMALong:        20,
		RSI:            14,
		ATR:            14,
		CandleInterval: time.Second,
	}
}

// Summary holds the latest value of every indicator. A nil field means the
// history is too short for it.
type Summary struct {
	Points   int              `json:"points"`
	Last     decimal.Decimal  `json:"last"`
	EMAShort *decimal.Decimal `json:"emaShort,omitempty"`
	EMALong  *decimal.Decimal `json:"emaLong,omitempty"`
	MACD     *decimal.Decimal `json:"macd,omitempty"`
	RSI      *decimal.Decimal `json:"rsi,omitempty"`
	ATR      *decimal.Decimal `json:"atr,omitempty"`
}

// PriceData represents OHLC (Open, High, Low, Close) price data
type PriceData struct {
	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
}

// Summarize computes the latest indicator values for history.
func Summarize(history []domain.PricePoint, p Periods) Summary {
	s := Summary{Points: len(history)}
	if len(history) == 0 {
		return s
	}

	closes := make([]decimal.Decimal, len(history))
	for i, pt := range history {
		closes[i] = pt.Price
	}
	s.Last = closes[len(closes)-1]

	if v, err := CalculateEMA(closes, p.EMAShort); err == nil {
		s.EMAShort = last(v)
	}
	if v, err := CalculateEMA(closes, p.EMALong); err == nil {
		s.EMALong = last(v)
	}
	if v, err := CalculateMACD(closes); err == nil {
		s.MACD = last(v)
	}
	if v, err := CalculateRSI(closes, p.RSI); err == nil {
		s.RSI = last(v)
	}
	if v, err := CalculateATR(Candles(history, p.CandleInterval), p.ATR); err == nil {
		s.ATR = last(v)
	}
	return s
}

// Candles groups price points into OHLC candles of the given interval.
// Points are expected in time order.
func Candles(history []domain.PricePoint, interval time.Duration) []PriceData {
	if interval <= 0 {
		interval = time.Second
	}

	var (
		out    []PriceData
		bucket time.Time
	)
	for i, pt := range history {
		b := pt.Timestamp.Truncate(interval)
		if i == 0 || !b.Equal(bucket) {
			bucket = b
			out = append(out, PriceData{Open: pt.Price, High: pt.Price, Low: pt.Price, Close: pt.Price})
			continue
		}
		c := &out[len(out)-1]
		c.High = decimal.Max(c.High, pt.Price)
		c.Low = decimal.Min(c.Low, pt.Price)
		c.Close = pt.Price
	}
	return out
}

// CalculateEMA calculates the Exponential Moving Average for the given period
func CalculateEMA(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period <= 0 || len(closes) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(closes))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	out := ema.Compute(helper.SliceToChan(decimalsToFloat64(closes)))

	return float64ToDecimals(helper.ChanToSlice(out)), nil
}

// CalculateMACD calculates the MACD line.
func CalculateMACD(closes []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(closes) < macdMinPoints {
		return nil, fmt.Errorf("not enough data points for MACD: need at least %d, got %d", macdMinPoints, len(closes))
	}

	macd := trend.NewMacd[float64]()
	macdChan, signalChan := macd.Compute(helper.SliceToChan(decimalsToFloat64(closes)))

	// the signal channel must be drained or Compute blocks
	go func() {
		for range signalChan {
		}
	}()

	return float64ToDecimals(helper.ChanToSlice(macdChan)), nil
}

// CalculateRSI calculates the Relative Strength Index for the given period
func CalculateRSI(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period <= 0 || len(closes) < period+1 {
		return nil, fmt.Errorf("not enough data points for RSI: need %d, got %d", period+1, len(closes))
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	out := rsi.Compute(helper.SliceToChan(decimalsToFloat64(closes)))

	return float64ToDecimals(helper.ChanToSlice(out)), nil
}

// CalculateATR calculates the Average True Range for the given period
func CalculateATR(priceData []PriceData, period int) ([]decimal.Decimal, error) {
	if period <= 0 || len(priceData) < period+1 {
		return nil, fmt.Errorf("not enough data points for ATR: need %d, got %d", period+1, len(priceData))
	}

	highs := make([]float64, len(priceData))
	lows := make([]float64, len(priceData))
	closes := make([]float64, len(priceData))
	for i, pd := range priceData {
		highs[i] = pd.High.InexactFloat64()
		lows[i] = pd.Low.InexactFloat64()
		closes[i] = pd.Close.InexactFloat64()
	}

	atr := volatility.NewAtrWithPeriod[float64](period)
	out := atr.Compute(helper.SliceToChan(highs), helper.SliceToChan(lows), helper.SliceToChan(closes))

	return float64ToDecimals(helper.ChanToSlice(out)), nil
}

func last(v []decimal.Decimal) *decimal.Decimal {
	if len(v) == 0 {
		return nil
	}
	d := v[len(v)-1]
	return &d
}

func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i] = d.InexactFloat64()
	}
	return result
}

// float64ToDecimals maps NaN and infinities (flat series) to zero.
func float64ToDecimals(floats []float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(floats))
	for i, f := range floats {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		result[i] = decimal.NewFromFloat(f)
	}
	return result
}
