package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a wallet position in scaled units.
// TokenPosition is an absolute accumulated amount; NetEthFlow is signed:
// negative when the wallet paid ETH into the pool, positive when it received ETH.
type Holding struct {
	TokenPosition *big.Int
	NetEthFlow    *big.Int
}

// Reserves pool balances at the API boundary.
type Reserves struct {
	Token decimal.Decimal `json:"token"`
	Eth   decimal.Decimal `json:"eth"`
}

// WalletBalance both positions of one wallet.
type WalletBalance struct {
	Address      string          `json:"address"`
	EthBalance   decimal.Decimal `json:"ethBalance"`
	TokenBalance decimal.Decimal `json:"tokenBalance"`
}

// WalletChange position deltas since the last snapshot.
type WalletChange struct {
	EthChange   decimal.Decimal `json:"ethChange"`
	TokenChange decimal.Decimal `json:"tokenChange"`
}

// PricePoint a price observation.
type PricePoint struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}
