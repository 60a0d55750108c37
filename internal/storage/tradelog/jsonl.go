package tradelog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/ohikava/token-sandbox/internal/domain"
)

// JSONLFile appends one JSON trade record per line.
type JSONLFile struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenJSONL opens path for appending, creating parent directories.
func OpenJSONL(path string) (*JSONLFile, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create trade log dir")
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open trade log")
	}

	return &JSONLFile{file: f, enc: json.NewEncoder(f)}, nil
}

// Append writes record followed by a newline.
func (j *JSONLFile) Append(record domain.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New("trade log is closed")
	}
	return errors.Wrap(j.enc.Encode(record), "append trade record")
}

// Close flushes and closes the file.
func (j *JSONLFile) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
