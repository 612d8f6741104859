package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and single-node development.
// It honors the same contract as PostgresStore, including the one-winner
// rotation guarantee.
type Memory struct {
	mu   sync.Mutex
	rows map[string]*Record
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]*Record)}
}

func (m *Memory) Persist(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[rec.JTI]; ok {
		return ErrConflict
	}
	m.rows[rec.JTI] = &rec
	return nil
}

func (m *Memory) Get(_ context.Context, jti string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.rows[jti]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

func (m *Memory) Validate(_ context.Context, jti string, now time.Time) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.rows[jti]
	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.Revoked {
		return Record{}, ErrRevoked
	}
	if !now.Before(rec.ExpiresAt) {
		return Record{}, ErrExpired
	}
	return *rec, nil
}

func (m *Memory) Rotate(_ context.Context, oldJTI string, next Record, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.rows[oldJTI]
	if !ok {
		return ErrNotFound
	}
	if old.Revoked {
		return ErrRevoked
	}
	if !now.Before(old.ExpiresAt) {
		return ErrExpired
	}
	if _, ok := m.rows[next.JTI]; ok {
		return ErrConflict
	}

	old.Revoked = true
	old.RevokedAt = &now
	replaced := next.JTI
	old.ReplacedBy = &replaced

	m.rows[next.JTI] = &next
	return nil
}

func (m *Memory) Revoke(_ context.Context, jti string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.rows[jti]
	if !ok || rec.Revoked {
		return nil
	}
	rec.Revoked = true
	rec.RevokedAt = &now
	return nil
}

func (m *Memory) RevokeAll(_ context.Context, userID string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, rec := range m.rows {
		if rec.UserID == userID && !rec.Revoked {
			rec.Revoked = true
			rec.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *Memory) PruneExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for jti, rec := range m.rows {
		if !now.Before(rec.ExpiresAt) {
			delete(m.rows, jti)
			n++
		}
	}
	return n, nil
}
