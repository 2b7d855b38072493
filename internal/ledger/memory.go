package ledger

import (
	"context"
	"sync"
)

// MemoryLedger keeps records in process memory. Appends for the same
// record id replace the earlier row so a pending record can settle into
// its terminal outcome.
type MemoryLedger struct {
	mu   sync.RWMutex
	rows []Record
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{rows: make([]Record, 0)}
}

func (m *MemoryLedger) Append(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == rec.ID {
			m.rows[i] = rec
			return nil
		}
	}
	m.rows = append(m.rows, rec)
	return nil
}

func (m *MemoryLedger) Query(_ context.Context, f Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.rows))
	for i := len(m.rows) - 1; i >= 0; i-- {
		rec := m.rows[i]
		if f.Recipient != "" && rec.Recipient != f.Recipient {
			continue
		}
		out = append(out, rec)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}
