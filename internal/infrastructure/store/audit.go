package store

import (
	"context"
	"sync"

	"collab-server/services/groupchat-api/internal/infrastructure/audit"
)

// MemoryAudit keeps audit and error rows in insertion order.
type MemoryAudit struct {
	mu     sync.Mutex
	audits []audit.Entry
	errors []audit.ErrorEntry
	// FailAudit makes InsertAudit fail, to exercise the error_log fallback.
	FailAudit error
	// FailError makes InsertError fail.
	FailError error
}

// NewMemoryAudit creates an empty audit store.
func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{}
}

var _ audit.Store = (*MemoryAudit)(nil)

// InsertAudit appends an audit row.
func (s *MemoryAudit) InsertAudit(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAudit != nil {
		return s.FailAudit
	}
	s.audits = append(s.audits, *entry)
	return nil
}

// InsertError appends an error row.
func (s *MemoryAudit) InsertError(_ context.Context, entry *audit.ErrorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailError != nil {
		return s.FailError
	}
	s.errors = append(s.errors, *entry)
	return nil
}

// CountAudit returns the number of audit rows.
func (s *MemoryAudit) CountAudit(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.audits)), nil
}

// DeleteOldestAudit drops the first n audit rows.
func (s *MemoryAudit) DeleteOldestAudit(_ context.Context, n int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n = min(n, len(s.audits))
	s.audits = append([]audit.Entry(nil), s.audits[n:]...)
	return int64(n), nil
}

// Audits returns a copy of the audit rows.
func (s *MemoryAudit) Audits() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.audits...)
}

// Errors returns a copy of the error rows.
func (s *MemoryAudit) Errors() []audit.ErrorEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.ErrorEntry(nil), s.errors...)
}
