package reset

import (
	"context"
	"sync"
	"time"
)

// Record is one reset token row. TokenHash is the hex SHA-256 of the
// mailed secret; the secret itself is never stored.
type Record struct {
	TokenHash string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store persists reset token records.
//
// Consume must be atomic: of N concurrent consumes of the same hash,
// exactly one returns the record and the rest get ErrInvalidToken.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (Record, error)
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// Memory is an in-process Store for tests and single-node development.
type Memory struct {
	mu   sync.Mutex
	rows map[string]Record
}

// NewMemory creates an empty in-memory reset store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]Record)}
}

func (m *Memory) Create(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[rec.TokenHash] = rec
	return nil
}

func (m *Memory) Consume(_ context.Context, tokenHash string, now time.Time) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.rows[tokenHash]
	if !ok || !now.Before(rec.ExpiresAt) {
		return Record{}, ErrInvalidToken
	}
	delete(m.rows, tokenHash)
	return rec, nil
}

func (m *Memory) PruneExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for hash, rec := range m.rows {
		if !now.Before(rec.ExpiresAt) {
			delete(m.rows, hash)
			n++
		}
	}
	return n, nil
}
