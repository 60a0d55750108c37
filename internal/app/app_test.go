package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ohikava/token-sandbox/config"
	"github.com/ohikava/token-sandbox/internal/storage/tradelog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.TokenSupply = decimal.NewFromInt(100)
	cfg.EthLiquidity = decimal.NewFromInt(100)
	cfg.StateFile = filepath.Join(dir, "state.json")
	cfg.TradeLog.WALDir = filepath.Join(dir, "wal")
	cfg.TradeLog.JSONLPath = filepath.Join(dir, "trades.jsonl")
	return cfg
}

// start runs a in the background and returns a function that stops it.
func start(t *testing.T, a *App) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func call(t *testing.T, a *App, method, path string, body any) map[string]any {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestApp_PersistsAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)

	first, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	stop := start(t, first)

	call(t, first, http.MethodPost, "/buy", map[string]any{"amount": 10, "walletAddress": "w1"})
	call(t, first, http.MethodPost, "/snapshot", nil)
	stop()

	_, err = os.Stat(cfg.StateFile)
	require.NoError(t, err, "state is saved on shutdown")

	second, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	stop = start(t, second)
	defer stop()

	body := call(t, second, http.MethodGet, "/getreserves", nil)
	assert.InDelta(t, 110, body["reserves"].(map[string]any)["token0"], 1e-12)

	body = call(t, second, http.MethodGet, "/getbalance/w1", nil)
	assert.InDelta(t, -10, body["balance"], 1e-12)

	body = call(t, second, http.MethodGet, "/getwalletchanges", nil)
	assert.Len(t, body["changes"], 1, "the snapshot survives the restart")
}

func TestApp_TradeLogs(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	stop := start(t, a)

	call(t, a, http.MethodPost, "/buy", map[string]any{"amount": 1, "walletAddress": "w1"})
	call(t, a, http.MethodPost, "/sell", map[string]any{"amount": "0.5", "walletAddress": "w1"})
	stop()

	f, err := os.Open(cfg.TradeLog.JSONLPath)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)

	wal, err := tradelog.NewWALStore(cfg.TradeLog.WALDir)
	require.NoError(t, err)
	defer wal.Close()

	entries, err := wal.RecordsAfter(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Record.IsBuy)
	assert.False(t, entries[1].Record.IsBuy)
}

func TestApp_RejectsCorruptState(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.StateFile, []byte(`{"token_reserve":"-1","eth_reserve":"1"}`), 0o644))

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestApp_NoPersistence(t *testing.T) {
	cfg := testConfig(t)
	cfg.StateFile = ""
	cfg.TradeLog = config.TradeLog{}

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	stop := start(t, a)

	body := call(t, a, http.MethodGet, "/getprice", nil)
	assert.InDelta(t, 1, body["price"], 1e-12)
	stop()
}
