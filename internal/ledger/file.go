package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// FileLedger persists records as one JSON object per line. The file is
// strictly append-only; a record that settles is appended again with its
// terminal outcome and the latest row for an id wins on load.
type FileLedger struct {
	mu   sync.Mutex
	path string
	mem  *MemoryLedger
}

func OpenFileLedger(path string) (*FileLedger, error) {
	l := &FileLedger{path: path, mem: NewMemoryLedger()}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLedger) load() error {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ledger open failed (%s): %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("ledger parse failed (%s): %w", l.path, err)
		}
		if err := l.mem.Append(context.Background(), rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (l *FileLedger) Append(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("ledger append failed (%s): %w", l.path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("ledger append failed (%s): %w", l.path, err)
	}
	return l.mem.Append(ctx, rec)
}

func (l *FileLedger) Query(ctx context.Context, f Filter) ([]Record, error) {
	return l.mem.Query(ctx, f)
}
