package retry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Причины попадания в DLQ
const (
	FailureMaxAttempts = "max_attempts_exceeded"
	FailureCancelled   = "context_cancelled"
	FailureCircuitOpen = "circuit_open"
)

// DLQEntry - недоставленное сообщение
type DLQEntry struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error"`
	FailureType string          `json:"failure_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// DLQ - файловая Dead Letter Queue
type DLQ struct {
	mu      sync.Mutex
	config  DLQConfig
	entries []DLQEntry
}

// NewDLQ открывает очередь, подгружая ранее сохраненный файл
func NewDLQ(config DLQConfig) (*DLQ, error) {
	d := &DLQ{config: config}

	data, err := os.ReadFile(config.FilePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return d, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read DLQ file: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &d.entries); err != nil {
			return nil, fmt.Errorf("failed to unmarshal DLQ: %w", err)
		}
	}
	return d, nil
}

// Add добавляет запись и сразу сохраняет файл
func (d *DLQ) Add(entry DLQEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	d.entries = append(d.entries, entry)

	if d.config.MaxSize > 0 && len(d.entries) > d.config.MaxSize {
		d.entries = d.entries[len(d.entries)-d.config.MaxSize:]
	}

	return d.saveLocked()
}

// Entries возвращает копию записей
func (d *DLQ) Entries() []DLQEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]DLQEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Drain забирает все записи для повторной отправки и очищает очередь
func (d *DLQ) Drain() ([]DLQEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := d.entries
	d.entries = nil
	return out, d.saveLocked()
}

// Size возвращает количество записей
func (d *DLQ) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Save сохраняет очередь в файл
func (d *DLQ) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveLocked()
}

func (d *DLQ) saveLocked() error {
	entries := d.entries
	if entries == nil {
		entries = []DLQEntry{}
	}

	// без отступов и HTML-экранирования: payload сохраняется в том виде, в каком публиковался
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("failed to marshal DLQ: %w", err)
	}

	if err := os.WriteFile(d.config.FilePath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write DLQ file: %w", err)
	}
	return nil
}
