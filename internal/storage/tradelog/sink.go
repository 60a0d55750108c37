// Package tradelog holds the append-only destinations for executed trades:
// a JSONL file, a gowal WAL, Kafka and Postgres. Every sink is best effort
// from the executor's point of view.
package tradelog

import (
	"go.uber.org/multierr"

	"github.com/ohikava/token-sandbox/internal/domain"
)

// Sink is a destination for trade records.
type Sink interface {
	Append(record domain.TradeRecord) error
}

// Multi appends to every sink and combines their errors. One failing sink
// does not stop the others.
type Multi []Sink

// Append implements Sink.
func (m Multi) Append(record domain.TradeRecord) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Append(record))
	}
	return err
}
