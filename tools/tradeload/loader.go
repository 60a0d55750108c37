package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Stats are updated concurrently by traders and subscribers.
type Stats struct {
	Trades   atomic.Int64
	Rejected atomic.Int64
	Failed   atomic.Int64
	Streams  atomic.Int64
	Events   atomic.Int64
}

func (s *Stats) fields() []zap.Field {
	return []zap.Field{
		zap.Int64("trades", s.Trades.Load()),
		zap.Int64("rejected", s.Rejected.Load()),
		zap.Int64("failed", s.Failed.Load()),
		zap.Int64("streams", s.Streams.Load()),
		zap.Int64("events", s.Events.Load()),
	}
}

// Loader drives a running sandbox over HTTP.
type Loader struct {
	baseURL string
	client  *http.Client
	stream  *http.Client
	logger  *zap.Logger
	stats   Stats
}

func NewLoader(baseURL string, logger *zap.Logger) *Loader {
	return &Loader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		stream:  &http.Client{}, // streaming, no timeout
		logger:  logger,
	}
}

func (l *Loader) post(ctx context.Context, path string, body, out any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return resp.StatusCode, fmt.Errorf("%s: %d %s", path, resp.StatusCode, e.Error)
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}

// Seed creates n wallets and funds them through distributeHoldings.
func (l *Loader) Seed(ctx context.Context, n int, minEth, maxEth, ratio float64) ([]string, error) {
	var gen struct {
		Wallets []string `json:"wallets"`
	}
	if _, err := l.post(ctx, "/generateWallets", map[string]any{"count": n}, &gen); err != nil {
		return nil, errors.Wrap(err, "generate wallets")
	}

	_, err := l.post(ctx, "/distributeHoldings", map[string]any{
		"minEth":             minEth,
		"maxEth":             maxEth,
		"ratioWithoutTokens": ratio,
		"wallets":            gen.Wallets,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "distribute holdings")
	}
	return gen.Wallets, nil
}

// Trade sends random buys and sells for wallets until ctx is done.
func (l *Loader) Trade(ctx context.Context, rng *rand.Rand, wallets []string, maxEth, maxTokens float64) {
	for ctx.Err() == nil {
		wallet := wallets[rng.Intn(len(wallets))]
		path, amount := "/buy", rng.Float64()*maxEth
		if rng.Intn(2) == 0 {
			path, amount = "/sell", rng.Float64()*maxTokens
		}

		status, err := l.post(ctx, path, map[string]any{
			"amount":        amount,
			"slippage":      1,
			"walletAddress": wallet,
		}, nil)
		switch {
		case err == nil:
			l.stats.Trades.Add(1)
		case ctx.Err() != nil:
			return
		case status >= 400 && status < 500:
			l.stats.Rejected.Add(1)
		default:
			l.stats.Failed.Add(1)
			l.logger.Debug("trade failed", zap.Error(err))
		}
	}
}

// Subscribe holds one trade stream open, counting events until ctx is done.
func (l *Loader) Subscribe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/trades/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := l.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("trade stream: status %d", resp.StatusCode)
	}

	l.stats.Streams.Add(1)
	defer l.stats.Streams.Add(-1)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if strings.HasPrefix(line, "event: trade") {
			l.stats.Events.Add(1)
		}
	}
}

// Run seeds the pool, then trades with the given number of workers while
// subscribers watch the stream, reporting progress every interval.
func (l *Loader) Run(ctx context.Context, o runOptions) error {
	wallets, err := l.Seed(ctx, o.wallets, o.minEth, o.maxEth, o.ratio)
	if err != nil {
		return err
	}
	l.logger.Info("pool seeded", zap.Int("wallets", len(wallets)))

	var wg sync.WaitGroup
	for i := 0; i < o.subscribers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Subscribe(ctx); err != nil {
				l.logger.Warn("subscriber stopped", zap.Error(err))
			}
		}()
	}
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		rng := rand.New(rand.NewSource(o.seed + int64(i)))
		go func() {
			defer wg.Done()
			l.Trade(ctx, rng, wallets, o.maxEth, o.maxTokens)
		}()
	}

	ticker := time.NewTicker(o.report)
	defer ticker.Stop()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case <-done:
			l.logger.Info("load finished", l.stats.fields()...)
			return nil
		case <-ticker.C:
			l.logger.Info("status", l.stats.fields()...)
		}
	}
}
