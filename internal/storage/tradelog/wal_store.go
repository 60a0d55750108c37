package tradelog

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/ohikava/token-sandbox/internal/domain"
)

const (
	DefaultWALDir = "./wal/trades"
	segmentLimit  = 1000
	maxSegments   = 10

	tradeKey = "trade"
)

// walEntry carries its own index so reads do not depend on segment layout.
type walEntry struct {
	Index  uint64             `json:"index"`
	Record domain.TradeRecord `json:"record"`
}

// WALStore persists trade records in a WAL and serves them back by index.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed trade store.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultWALDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "trade_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init trade WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append writes the record at the next WAL index.
func (s *WALStore) Append(record domain.TradeRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("trade store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.wal.CurrentIndex() + 1
	payload, err := json.Marshal(walEntry{Index: next, Record: record})
	if err != nil {
		return errors.Wrap(err, "marshal trade record")
	}

	return errors.Wrap(s.wal.Write(next, tradeKey, payload), "write trade record")
}

// RecordsAfter returns the records written after index, oldest first.
func (s *WALStore) RecordsAfter(index uint64) ([]domain.TradeRecordEntry, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("trade store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.wal.CurrentIndex() <= index {
		return nil, nil
	}

	var out []domain.TradeRecordEntry
	for msg := range s.wal.Iterator() {
		if msg.Key != tradeKey {
			continue
		}
		var e walEntry
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			return nil, errors.Wrap(err, "decode trade record")
		}
		if e.Index <= index {
			continue
		}
		out = append(out, domain.TradeRecordEntry{Index: e.Index, Record: e.Record})
	}

	return out, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("trade store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
