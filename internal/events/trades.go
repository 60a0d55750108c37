// Package events fans executed trades out to live subscribers.
package events

import (
	"sync"

	"github.com/ohikava/token-sandbox/internal/domain"
)

const defaultBuffer = 64

// TradeBroadcaster fans out trade records to all subscribers via buffered channels.
// A subscriber that falls behind misses records instead of blocking trades.
type TradeBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.TradeRecord]struct{}
	buffer int
}

// NewTradeBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewTradeBroadcaster(buffer int) *TradeBroadcaster {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &TradeBroadcaster{
		subs:   make(map[chan domain.TradeRecord]struct{}),
		buffer: buffer,
	}
}

// Append publishes record. It never fails, so the broadcaster can be used as a trade sink.
func (b *TradeBroadcaster) Append(record domain.TradeRecord) error {
	b.Publish(record)
	return nil
}

// Publish sends the record to all subscribers, dropping it for slow readers.
func (b *TradeBroadcaster) Publish(record domain.TradeRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- record:
		default:
		}
	}
}

// Subscribe returns a channel that receives records until Unsubscribe is called.
func (b *TradeBroadcaster) Subscribe() chan domain.TradeRecord {
	ch := make(chan domain.TradeRecord, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *TradeBroadcaster) Unsubscribe(ch chan domain.TradeRecord) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active subscribers.
func (b *TradeBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
