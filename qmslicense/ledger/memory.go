package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLedger is an in-process Ledger for tests and one-shot tooling.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]Record), now: time.Now}
}

func (l *MemoryLedger) Record(_ context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[rec.LicenseID]; ok {
		return ErrDuplicate
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = l.now().UTC()
	}
	l.records[rec.LicenseID] = cloneRecord(rec)
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, licenseID string) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[licenseID]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRecord(rec)
	return &out, nil
}

func (l *MemoryLedger) List(_ context.Context, f Filter) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Record
	for _, rec := range l.records {
		if f.match(rec) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].LicenseID < out[j].LicenseID
		}
		return out[i].IssuedAt.Before(out[j].IssuedAt)
	})
	return out, nil
}

func (l *MemoryLedger) Count(_ context.Context, f Filter) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, rec := range l.records {
		if f.match(rec) {
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) Close(_ context.Context) error {
	return nil
}

func cloneRecord(r Record) Record {
	if r.Modules != nil {
		r.Modules = append([]string(nil), r.Modules...)
	}
	return r
}
