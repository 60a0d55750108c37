package setup

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswers_Config(t *testing.T) {
	a := DefaultAnswers()
	a.TokenSupply = "1000"
	a.EthLiquidity = " 2.5 "
	a.Decimals = "9"
	a.KafkaBrokers = "k1:9092, ,k2:9092"
	a.PostgresDSN = "postgres://u:p@localhost/db"

	cfg, err := a.Config()
	require.NoError(t, err)
	assert.True(t, cfg.TokenSupply.Equal(decimal.NewFromInt(1000)))
	assert.True(t, cfg.EthLiquidity.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, int32(9), cfg.Decimals)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.TradeLog.KafkaBrokers)
	assert.Equal(t, "sandbox.state.json", cfg.StateFile)
	assert.Equal(t, "postgres://u:p@localhost/db", cfg.TradeLog.PostgresDSN)
}

func TestAnswers_ConfigInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Answers)
	}{
		{name: "supply not a number", mutate: func(a *Answers) { a.TokenSupply = "many" }},
		{name: "zero liquidity", mutate: func(a *Answers) { a.EthLiquidity = "0" }},
		{name: "bad decimals", mutate: func(a *Answers) { a.Decimals = "x" }},
		{name: "bad gas", mutate: func(a *Answers) { a.GasPrice = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DefaultAnswers()
			tt.mutate(&a)
			_, err := a.Config()
			assert.Error(t, err)
		})
	}
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validatePositive("1.5"))
	assert.Error(t, validatePositive("0"))
	assert.Error(t, validatePositive("abc"))

	assert.NoError(t, validateNonNegative("0"))
	assert.Error(t, validateNonNegative("-0.1"))

	assert.NoError(t, validateDecimals("18"))
	assert.Error(t, validateDecimals("37"))
	assert.Error(t, validateDecimals("1.5"))
}
