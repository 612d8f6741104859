package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gate/cmd/security/password"
)

// MemoryStore is an in-process Store for tests and single-node
// development. It uses the same Argon2id hashing and the same error
// contract as PostgresStore, including the timing-resistant Verify.
type MemoryStore struct {
	mu      sync.Mutex
	byEmail map[string]User
	byID    map[string]User

	hasher    password.Config
	dummyHash string
}

// NewMemoryStore constructs a MemoryStore with hashing parameters from the
// environment.
func NewMemoryStore() (*MemoryStore, error) {
	hasher, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	dummy, err := hasher.Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}

	return &MemoryStore{
		byEmail:   make(map[string]User),
		byID:      make(map[string]User),
		hasher:    hasher,
		dummyHash: dummy,
	}, nil
}

func (s *MemoryStore) Register(_ context.Context, email, plainPassword string, now time.Time) (User, error) {
	emailNorm := NormalizeEmail(email)
	if emailNorm == "" || !ValidEmail(emailNorm) {
		return User{}, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if strings.TrimSpace(plainPassword) == "" {
		return User{}, fmt.Errorf("%w: password", ErrInvalidInput)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return User{}, err
	}

	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[emailNorm]; ok {
		return User{}, ErrDuplicateEmail
	}

	u := User{ID: id, Email: emailNorm, PasswordHash: hash, CreatedAt: now}
	s.byEmail[emailNorm] = u
	s.byID[id] = u
	return u, nil
}

func (s *MemoryStore) Verify(_ context.Context, email, plainPassword string) (User, error) {
	emailNorm := NormalizeEmail(email)

	s.mu.Lock()
	u, ok := s.byEmail[emailNorm]
	s.mu.Unlock()

	if !ok || emailNorm == "" || plainPassword == "" {
		_, _ = s.hasher.Verify(s.dummyHash, plainPassword)
		return User{}, ErrInvalidCredentials
	}

	okPw, err := s.hasher.Verify(u.PasswordHash, plainPassword)
	if err != nil || !okPw {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) UpdatePassword(_ context.Context, id, plainPassword string, now time.Time) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id", ErrInvalidInput)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	s.byID[id] = u
	s.byEmail[u.Email] = u
	return nil
}
