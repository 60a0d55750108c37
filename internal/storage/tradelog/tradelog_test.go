package tradelog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ohikava/token-sandbox/internal/domain"
	"github.com/ohikava/token-sandbox/pkg/retrier"
)

func sampleRecord(id string) domain.TradeRecord {
	return domain.TradeRecord{
		ID:           id,
		Wallet:       "0xabc",
		IsBuy:        true,
		EthInput:     decimal.RequireFromString("1.5"),
		TokenOutput:  decimal.RequireFromString("120.25"),
		TokenBalance: decimal.RequireFromString("14520306.75"),
		EthBalance:   decimal.RequireFromString("171.5"),
		Price:        decimal.RequireFromString("0.0000118"),
		PriceChange:  decimal.RequireFromString("0.88"),
		Timestamp:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

type memorySink struct {
	mu      sync.Mutex
	records []domain.TradeRecord
	fails   int
}

func (m *memorySink) Append(r domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails > 0 {
		m.fails--
		return errors.New("unavailable")
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memorySink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func TestJSONLFile_AppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "trades.jsonl")

	j, err := OpenJSONL(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(sampleRecord("a")))
	require.NoError(t, j.Append(sampleRecord("b")))
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	assert.Error(t, j.Append(sampleRecord("c")))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)

	for _, key := range []string{"isBuy", "ethInput", "tokenOutput", "tokenBalance", "ethBalance", "price"} {
		assert.Contains(t, lines[0], key)
	}
	assert.Equal(t, "b", lines[1]["id"])
	assert.Equal(t, true, lines[0]["isBuy"])
}

func TestWALStore_RecordsAfter(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)

	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, store.Append(sampleRecord(id)))
	}
	assert.Equal(t, uint64(3), store.CurrentIndex())

	all, err := store.RecordsAfter(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(1), all[0].Index)
	assert.Equal(t, "t1", all[0].Record.ID)
	assert.True(t, all[0].Record.EthInput.Equal(decimal.RequireFromString("1.5")))

	tail, err := store.RecordsAfter(2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "t3", tail[0].Record.ID)

	none, err := store.RecordsAfter(3)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint64(3), reopened.CurrentIndex())
}

func TestWALStore_Uninitialized(t *testing.T) {
	var s *WALStore
	assert.Error(t, s.Append(sampleRecord("x")))
	_, err := s.RecordsAfter(0)
	assert.Error(t, err)
	assert.Zero(t, s.CurrentIndex())
}

func TestMulti_ContinuesPastFailures(t *testing.T) {
	failing := &memorySink{fails: 1}
	ok := &memorySink{}

	err := Multi{failing, ok}.Append(sampleRecord("a"))
	assert.Error(t, err)
	assert.Equal(t, 1, ok.len())

	assert.NoError(t, Multi{failing, ok}.Append(sampleRecord("b")))
	assert.Equal(t, 1, failing.len())
}

func TestAsync_RetriesAndDrains(t *testing.T) {
	next := &memorySink{fails: 2}
	r := retrier.New(retrier.WithMaxRetries(3), retrier.WithInitialInterval(time.Millisecond))
	a := NewAsync("memory", next, 8, r, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	require.NoError(t, a.Append(sampleRecord("a")))
	require.NoError(t, a.Append(sampleRecord("b")))

	require.Eventually(t, func() bool { return next.len() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestAsync_QueueFull(t *testing.T) {
	a := NewAsync("memory", &memorySink{}, 1, nil, zap.NewNop())

	require.NoError(t, a.Append(sampleRecord("a")))
	err := a.Append(sampleRecord("b"))
	assert.ErrorIs(t, err, ErrQueueFull)

	// Close before Start still flushes what is queued
	next := &memorySink{}
	b := NewAsync("memory", next, 4, nil, zap.NewNop())
	require.NoError(t, b.Append(sampleRecord("c")))
	b.Close()
	require.NoError(t, b.Start(context.Background()))
	assert.Equal(t, 1, next.len())
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink_Append(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaSink{writer: w, timeout: time.Second}

	rec := sampleRecord("k1")
	require.NoError(t, k.Append(rec))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("0xabc"), w.msgs[0].Key)
	assert.Equal(t, rec.Timestamp, w.msgs[0].Time)

	var decoded domain.TradeRecord
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "k1", decoded.ID)
	assert.True(t, decoded.Price.Equal(rec.Price))

	w.err = errors.New("leader not available")
	assert.ErrorContains(t, k.Append(rec), "publish trade record")

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}
