package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ohikava/token-sandbox/internal/dispatch"
	"github.com/ohikava/token-sandbox/internal/domain"
	"github.com/ohikava/token-sandbox/internal/services/indicators"
	"github.com/ohikava/token-sandbox/internal/services/seeder"
)

type tradeRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Slippage      decimal.Decimal `json:"slippage"`
	WalletAddress string          `json:"walletAddress"`
}

type distributeRequest struct {
	MinEth             decimal.Decimal `json:"minEth"`
	MaxEth             decimal.Decimal `json:"maxEth"`
	RatioWithoutTokens float64         `json:"ratioWithoutTokens"`
	Wallets            []string        `json:"wallets"`
}

type generateWalletsRequest struct {
	Count int `json:"count"`
}

// Amounts leave the API as JSON numbers, the shape existing clients read.
func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func (s *Server) handleBuy(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	record, err := dispatch.Call(c.Request.Context(), s.queue, func() (domain.TradeRecord, error) {
		return s.box.Buy(req.WalletAddress, req.Amount, req.Slippage)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bought", "trade": record})
}

func (s *Server) handleSell(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	record, err := dispatch.Call(c.Request.Context(), s.queue, func() (domain.TradeRecord, error) {
		return s.box.Sell(req.WalletAddress, req.Amount, req.Slippage)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Sold", "trade": record})
}

func (s *Server) handleDistributeHoldings(c *gin.Context) {
	var req distributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := dispatch.Call(c.Request.Context(), s.queue, func() (seeder.Result, error) {
		return s.box.DistributeHoldings(req.MinEth, req.MaxEth, req.RatioWithoutTokens, req.Wallets)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":              "Holdings distributed",
		"walletsWithTokens":    res.WalletsWithTokens,
		"walletsWithoutTokens": res.WalletsWithoutTokens,
		"priceBefore":          num(res.PriceBefore),
		"priceAfter":           num(res.PriceAfter),
		"priceChange":          num(res.PriceChange),
	})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	err := s.queue.Do(c.Request.Context(), func() error {
		s.box.Snapshot()
		return nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Snapshot taken"})
}

func (s *Server) handleGenerateWallets(c *gin.Context) {
	var req generateWalletsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	// key generation is pure; it does not need the queue
	wallets, err := s.box.GenerateWallets(req.Count)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

func (s *Server) handleGetPrice(c *gin.Context) {
	price, err := dispatch.Call(c.Request.Context(), s.queue, func() (decimal.Decimal, error) {
		return s.box.GetPrice(), nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"price": num(price)})
}

func (s *Server) handleGetGasPrice(c *gin.Context) {
	gas, err := dispatch.Call(c.Request.Context(), s.queue, func() (decimal.Decimal, error) {
		return s.box.GetGasPrice(), nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gasPrice": num(gas)})
}

func (s *Server) handleGetReserves(c *gin.Context) {
	res, err := dispatch.Call(c.Request.Context(), s.queue, func() (domain.Reserves, error) {
		return s.box.GetReserves(), nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reserves": gin.H{
		"token0": num(res.Eth),
		"token1": num(res.Token),
	}})
}

func (s *Server) handleGetBalance(c *gin.Context) {
	wallet := c.Param("publicKey")
	balance, err := dispatch.Call(c.Request.Context(), s.queue, func() (decimal.Decimal, error) {
		return s.box.GetBalance(wallet), nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": num(balance)})
}

func (s *Server) handleGetTokenBalance(c *gin.Context) {
	wallet := c.Param("publicKey")
	balance, err := dispatch.Call(c.Request.Context(), s.queue, func() (decimal.Decimal, error) {
		return s.box.GetTokenBalance(wallet), nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokenBalance": num(balance)})
}

func (s *Server) handleGetAllWallets(c *gin.Context) {
	wallets, err := dispatch.Call(c.Request.Context(), s.queue, func() ([]string, error) {
		return s.box.GetAllWallets(), nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

type balanceView struct {
	Address      string  `json:"address"`
	EthBalance   float64 `json:"ethBalance"`
	TokenBalance float64 `json:"tokenBalance"`
}

func (s *Server) handleGetAllBalances(c *gin.Context) {
	balances, err := dispatch.Call(c.Request.Context(), s.queue, func() ([]domain.WalletBalance, error) {
		return s.box.GetAllBalances(), nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]balanceView, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceView{
			Address:      b.Address,
			EthBalance:   num(b.EthBalance),
			TokenBalance: num(b.TokenBalance),
		})
	}
	c.JSON(http.StatusOK, gin.H{"balances": out})
}

func (s *Server) handleReloadState(c *gin.Context) {
	if err := s.queue.Do(c.Request.Context(), s.box.ReloadState); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "State reloaded"})
}

type changeView struct {
	Address     string  `json:"address"`
	EthChange   float64 `json:"ethChange"`
	TokenChange float64 `json:"tokenChange"`
}

func (s *Server) handleGetWalletChanges(c *gin.Context) {
	var out []changeView
	err := s.queue.Do(c.Request.Context(), func() error {
		changes, err := s.box.GetWalletChanges()
		if err != nil {
			return err
		}
		out = make([]changeView, 0, len(changes))
		// ledger order is stable; the diff map is not
		for _, w := range s.box.GetAllWallets() {
			ch, ok := changes[w]
			if !ok {
				continue
			}
			out = append(out, changeView{
				Address:     w,
				EthChange:   num(ch.EthChange),
				TokenChange: num(ch.TokenChange),
			})
		}
		return nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": out})
}

type pricePointView struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

func (s *Server) handleGetPriceHistory(c *gin.Context) {
	history, err := dispatch.Call(c.Request.Context(), s.queue, func() ([]domain.PricePoint, error) {
		return s.box.PriceHistory(), nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]pricePointView, 0, len(history))
	for _, p := range history {
		out = append(out, pricePointView{Price: num(p.Price), Timestamp: p.Timestamp.UnixMilli()})
	}
	c.JSON(http.StatusOK, gin.H{"priceHistory": out})
}

func (s *Server) handleGetIndicators(c *gin.Context) {
	summary, err := dispatch.Call(c.Request.Context(), s.queue, func() (indicators.Summary, error) {
		return s.box.Indicators(), nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"indicators": summary})
}
