// Package web serves the sandbox over HTTP. Every sandbox call is routed
// through the dispatch queue, so handlers never touch the session directly.
package web

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/ohikava/token-sandbox/internal/dispatch"
	"github.com/ohikava/token-sandbox/internal/domain"
	"github.com/ohikava/token-sandbox/internal/sandbox"
)

const (
	defaultHeartbeat    = 20 * time.Second
	defaultPollInterval = 3 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// tradeFeed delivers live trades.
type tradeFeed interface {
	Subscribe() chan domain.TradeRecord
	Unsubscribe(ch chan domain.TradeRecord)
}

// tradeReplayer serves persisted trades by log index.
type tradeReplayer interface {
	RecordsAfter(index uint64) ([]domain.TradeRecordEntry, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithTradeFeed enables live trades on /trades/stream.
func WithTradeFeed(f tradeFeed) Option {
	return func(s *Server) { s.feed = f }
}

// WithTradeReplay lets /trades/stream resume from Last-Event-ID.
func WithTradeReplay(r tradeReplayer) Option {
	return func(s *Server) { s.replay = r }
}

// WithStreamTimings overrides the SSE heartbeat and replay poll intervals.
func WithStreamTimings(heartbeat, poll time.Duration) Option {
	return func(s *Server) {
		if heartbeat > 0 {
			s.heartbeat = heartbeat
		}
		if poll > 0 {
			s.pollInterval = poll
		}
	}
}

// Server exposes the sandbox operations and the trade stream.
type Server struct {
	addr   string
	box    *sandbox.Sandbox
	queue  *dispatch.Queue
	feed   tradeFeed
	replay tradeReplayer
	logger *zap.Logger

	heartbeat    time.Duration
	pollInterval time.Duration

	engine *gin.Engine
}

// NewServer creates a server for box. Calls are serialized through queue,
// which must be running for requests to complete.
func NewServer(addr string, box *sandbox.Sandbox, queue *dispatch.Queue, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		box:          box,
		queue:        queue,
		logger:       zap.NewNop(),
		heartbeat:    defaultHeartbeat,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), cors())

	r.POST("/distributeHoldings", s.handleDistributeHoldings)
	r.POST("/buy", s.handleBuy)
	r.POST("/sell", s.handleSell)
	r.POST("/snapshot", s.handleSnapshot)
	r.POST("/generateWallets", s.handleGenerateWallets)

	r.GET("/getprice", s.handleGetPrice)
	r.GET("/getgasprice", s.handleGetGasPrice)
	r.GET("/getreserves", s.handleGetReserves)
	r.GET("/getbalance/:publicKey", s.handleGetBalance)
	r.GET("/gettokenbalance/:publicKey", s.handleGetTokenBalance)
	r.GET("/getallwallets", s.handleGetAllWallets)
	r.GET("/getAllBalances", s.handleGetAllBalances)
	r.GET("/reloadState", s.handleReloadState)
	r.GET("/getwalletchanges", s.handleGetWalletChanges)
	r.GET("/getpricehistory", s.handleGetPriceHistory)
	r.GET("/getindicators", s.handleGetIndicators)

	r.GET("/trades/stream", s.handleTradeStream)

	return r
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http server shutdown", zap.Error(err))
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS serves HTTPS with ACME certificates for domains. An HTTP
// server on :80 answers the HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http (acme) server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http (acme) server", zap.Error(err))
		}
	}()

	s.logger.Info("https server listening", zap.String("addr", s.addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/trades/stream" {
			return
		}
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
