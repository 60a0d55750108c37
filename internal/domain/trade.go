package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is an executed buy or sell.
// EthInput and TokenOutput carry the ETH and token legs whatever the direction:
// for a sell EthInput is the ETH paid out and TokenOutput the tokens sold.
// TokenBalance and EthBalance are the pool reserves after the trade.
type TradeRecord struct {
	ID           string          `json:"id"`
	Wallet       string          `json:"wallet"`
	IsBuy        bool            `json:"isBuy"`
	EthInput     decimal.Decimal `json:"ethInput"`
	TokenOutput  decimal.Decimal `json:"tokenOutput"`
	TokenBalance decimal.Decimal `json:"tokenBalance"`
	EthBalance   decimal.Decimal `json:"ethBalance"`
	Price        decimal.Decimal `json:"price"`
	PriceChange  decimal.Decimal `json:"priceChange"`
	Timestamp    time.Time       `json:"ts"`
}

// String returns a human-readable string representation.
func (t *TradeRecord) String() string {
	action := "SELL"
	if t.IsBuy {
		action = "BUY"
	}
	return fmt.Sprintf("%s %s ETH: %s TOKEN: %s PRICE CHANGE: %s%%",
		action, t.Wallet, t.EthInput.String(), t.TokenOutput.String(), t.PriceChange.String())
}

// TradeRecordEntry bundles a trade record with its log index.
type TradeRecordEntry struct {
	Index  uint64
	Record TradeRecord
}
