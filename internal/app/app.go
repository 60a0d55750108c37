// Package app assembles the sandbox server from its configuration: the
// session, its trade sinks, the dispatch queue and the HTTP layer.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ohikava/token-sandbox/config"
	"github.com/ohikava/token-sandbox/internal/dispatch"
	"github.com/ohikava/token-sandbox/internal/events"
	"github.com/ohikava/token-sandbox/internal/sandbox"
	"github.com/ohikava/token-sandbox/internal/storage/simstate"
	"github.com/ohikava/token-sandbox/internal/storage/tradelog"
	"github.com/ohikava/token-sandbox/internal/web"
)

const postgresConnectTimeout = 10 * time.Second

type closer struct {
	name  string
	close func() error
}

// App is one running sandbox server.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	box    *sandbox.Sandbox
	queue  *dispatch.Queue
	state  *simstate.Store
	server *web.Server

	workers []*tradelog.Async
	closers []closer
}

// New builds the server and restores saved state when a state file is configured.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.state, err = simstate.NewStore(cfg.StateFile); err != nil {
		return nil, err
	}

	feed := events.NewTradeBroadcaster(0)
	var wal *tradelog.WALStore
	sinks := tradelog.Multi{}

	// the WAL goes before the feed so a live notification finds the record stored
	if cfg.TradeLog.WALDir != "" {
		if wal, err = tradelog.NewWALStore(cfg.TradeLog.WALDir); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closer{"trade wal", wal.Close})
		sinks = append(sinks, wal)
	}
	sinks = append(sinks, feed)

	if cfg.TradeLog.JSONLPath != "" {
		jsonl, err := tradelog.OpenJSONL(cfg.TradeLog.JSONLPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closer{"trade jsonl", jsonl.Close})
		sinks = append(sinks, jsonl)
	}

	if len(cfg.TradeLog.KafkaBrokers) > 0 {
		kafkaSink := tradelog.NewKafkaSink(cfg.TradeLog.KafkaBrokers, cfg.TradeLog.KafkaTopic)
		a.closers = append(a.closers, closer{"kafka writer", kafkaSink.Close})
		sinks = append(sinks, a.async("kafka", kafkaSink))
		logger.Info("kafka trade sink enabled",
			zap.Strings("brokers", cfg.TradeLog.KafkaBrokers),
			zap.String("topic", cfg.TradeLog.KafkaTopic))
	}

	if cfg.TradeLog.PostgresDSN != "" {
		pgCtx, cancel := context.WithTimeout(ctx, postgresConnectTimeout)
		defer cancel()

		pool, err := tradelog.NewPool(pgCtx, cfg.TradeLog.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closer{"postgres pool", func() error { pool.Close(); return nil }})

		pgSink, err := tradelog.NewPostgresSink(pgCtx, pool)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, a.async("postgres", pgSink))
		logger.Info("postgres trade sink enabled")
	}

	a.box, err = sandbox.New(sandboxConfig(cfg),
		sandbox.WithLogger(logger.Named("sandbox")),
		sandbox.WithTradeSink(sinks))
	if err != nil {
		return nil, err
	}

	saved, err := a.state.Load()
	if err != nil {
		return nil, err
	}
	if saved != nil {
		if err := a.box.ImportState(*saved); err != nil {
			return nil, errors.Wrapf(err, "restore state from %s", a.state.Path())
		}
		logger.Info("sandbox state restored",
			zap.String("path", a.state.Path()),
			zap.Time("saved_at", saved.SavedAt),
			zap.Int("wallets", len(saved.Wallets)))
	}

	a.queue = dispatch.New(0, logger.Named("dispatch"))

	opts := []web.Option{web.WithLogger(logger.Named("web")), web.WithTradeFeed(feed)}
	if wal != nil {
		opts = append(opts, web.WithTradeReplay(wal))
	}
	a.server = web.NewServer(cfg.Addr, a.box, a.queue, opts...)

	return a, nil
}

func (a *App) async(name string, next tradelog.Sink) *tradelog.Async {
	w := tradelog.NewAsync(name, next, 0, nil, a.logger.Named("tradelog"))
	a.workers = append(a.workers, w)
	return w
}

func sandboxConfig(cfg config.Config) sandbox.Config {
	return sandbox.Config{
		TokenSupply:  cfg.TokenSupply,
		EthLiquidity: cfg.EthLiquidity,
		Decimals:     cfg.Decimals,
		GasPrice:     cfg.GasPrice,
		HistoryLimit: cfg.HistoryLimit,
		Seed:         cfg.Seed,
	}
}

// Handler returns the HTTP handler. Requests complete only while Run is active.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run serves until ctx is cancelled or a component fails, then saves the
// session state and releases every sink.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.queue.Run(gctx) })
	for _, w := range a.workers {
		g.Go(func() error { return w.Start(gctx) })
	}
	g.Go(func() error {
		if a.cfg.TLS.Domain != "" {
			return a.server.StartWithAutoTLS(gctx, []string{a.cfg.TLS.Domain}, a.cfg.TLS.CacheDir)
		}
		return a.server.Start(gctx)
	})

	err := g.Wait()

	// every goroutine touching the session has stopped
	if saveErr := a.saveState(); saveErr != nil {
		err = multierr.Append(err, saveErr)
	}
	a.close()

	return err
}

func (a *App) saveState() error {
	if a.state.Path() == "" {
		return nil
	}
	state := a.box.ExportState()
	if err := a.state.Save(state); err != nil {
		return err
	}
	a.logger.Info("sandbox state saved",
		zap.String("path", a.state.Path()),
		zap.Int("wallets", len(state.Wallets)))
	return nil
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
