package reset

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"gate/cmd/identity"
	"gate/cmd/internal/auth/ledger"
)

// DefaultTokenTTL is how long a mailed reset link stays valid.
const DefaultTokenTTL = time.Hour

// Mailer delivers the reset secret to the account owner. The service
// never returns the secret to the HTTP caller.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer is the development Mailer: it logs instead of sending. The
// token itself is deliberately not logged.
type LogMailer struct {
	Log *slog.Logger
}

func (m LogMailer) SendPasswordReset(ctx context.Context, email, _ string) error {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "password reset mail suppressed (no mailer configured)", "email", email)
	return nil
}

// Service runs the request/confirm reset flow.
type Service struct {
	users    identity.Store
	store    Store
	sessions ledger.Store
	mailer   Mailer
	log      *slog.Logger
	tokenTTL time.Duration
}

// NewService constructs a reset Service. A nil mailer gets LogMailer, a
// nil logger slog.Default, a zero ttl DefaultTokenTTL.
func NewService(users identity.Store, store Store, sessions ledger.Store, mailer Mailer, log *slog.Logger, tokenTTL time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	if mailer == nil {
		mailer = LogMailer{Log: log}
	}
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{
		users:    users,
		store:    store,
		sessions: sessions,
		mailer:   mailer,
		log:      log,
		tokenTTL: tokenTTL,
	}
}

// Request starts a reset for email. It succeeds whether or not the email
// belongs to an account, so the endpoint cannot be used to enumerate
// users.
func (s *Service) Request(ctx context.Context, now time.Time, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil
		}
		return err
	}

	secret, hash, err := newSecret()
	if err != nil {
		return err
	}

	if err := s.store.Create(ctx, Record{
		TokenHash: hash,
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokenTTL),
	}); err != nil {
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, u.Email, secret); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "password reset requested", "user_id", u.ID)
	return nil
}

// Confirm spends a reset token and sets the new password. On success
// every live refresh token for the user is revoked: a password reset is
// the recover-my-account path, old sessions do not survive it.
func (s *Service) Confirm(ctx context.Context, now time.Time, tokenPlain, newPassword string) error {
	rec, err := s.store.Consume(ctx, hashSecret(tokenPlain), now)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, rec.UserID, newPassword, now); err != nil {
		return err
	}

	if n, err := s.sessions.RevokeAll(ctx, rec.UserID, now); err != nil {
		s.log.ErrorContext(ctx, "revoke-all after password reset failed",
			"user_id", rec.UserID, "error", err)
	} else {
		s.log.InfoContext(ctx, "password reset confirmed",
			"user_id", rec.UserID, "sessions_revoked", n)
	}

	return nil
}

// newSecret returns a fresh random token and its stored hash.
func newSecret() (secret, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	secret = base64.RawURLEncoding.EncodeToString(buf)
	return secret, hashSecret(secret), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
