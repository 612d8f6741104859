package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gate/cmd/identity"
	"gate/cmd/internal/auth/ledger"
	"gate/cmd/internal/auth/token"
)

// Service implements the high-level auth operations for gate.
//
// It issues token pairs (access + refresh), validates access tokens,
// rotates refresh tokens against the ledger, and revokes on logout.
type Service struct {
	users  identity.Store
	tokens *token.Issuer
	ledger ledger.Store
	log    *slog.Logger
}

// Pair is the result of login or refresh: a short-lived access token and a
// long-lived, single-use refresh token.
type Pair struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// New constructs a Service. A nil logger falls back to slog.Default.
func New(users identity.Store, tokens *token.Issuer, ledg ledger.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{users: users, tokens: tokens, ledger: ledg, log: log}
}

// Register creates a new account and starts its first session: the fresh
// token pair is issued and its refresh jti recorded before anything is
// returned, so a 201 always carries a working session.
//
// Identity errors pass through untouched: ErrDuplicateEmail,
// ErrInvalidInput. No tokens are ever minted for a failed registration.
func (s *Service) Register(ctx context.Context, now time.Time, email, password string) (identity.User, Pair, error) {
	u, err := s.users.Register(ctx, email, password, now)
	if err != nil {
		return identity.User{}, Pair{}, err
	}

	pair, err := s.issuePair(ctx, now, u.ID)
	if err != nil {
		return identity.User{}, Pair{}, err
	}

	s.log.InfoContext(ctx, "user registered", "user_id", u.ID)
	return u, pair, nil
}

// Login verifies credentials and issues a fresh token pair. The refresh
// token's jti is recorded in the ledger before the pair is returned; a
// pair whose ledger write failed is never handed out.
func (s *Service) Login(ctx context.Context, now time.Time, email, password string) (identity.User, Pair, error) {
	u, err := s.users.Verify(ctx, email, password)
	if err != nil {
		return identity.User{}, Pair{}, err
	}

	pair, err := s.issuePair(ctx, now, u.ID)
	if err != nil {
		return identity.User{}, Pair{}, err
	}

	s.log.InfoContext(ctx, "login", "user_id", u.ID)
	return u, pair, nil
}

// Authenticate statelessly verifies an access token. The ledger is not
// consulted: access tokens are short-lived by design and outrun any
// revocation window.
func (s *Service) Authenticate(tokenStr string, now time.Time) (token.Claims, error) {
	claims, err := s.tokens.Verify(tokenStr, token.KindAccess, now)
	if err != nil {
		return token.Claims{}, ErrUnauthorized
	}
	return claims, nil
}

// Refresh spends a refresh token and returns the account plus a
// replacement pair.
//
// The old jti is revoked and the new one recorded in one ledger
// transaction, so a replayed token fails cleanly: when the ledger reports
// the jti already spent, every live token for that user is revoked as a
// containment measure and the caller gets ErrUnauthorized like any other
// failure. A token whose account has since vanished is just as dead.
func (s *Service) Refresh(ctx context.Context, now time.Time, refreshToken string) (identity.User, Pair, error) {
	claims, err := s.tokens.Verify(refreshToken, token.KindRefresh, now)
	if err != nil {
		return identity.User{}, Pair{}, ErrUnauthorized
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.User{}, Pair{}, ErrUnauthorized
		}
		return identity.User{}, Pair{}, err
	}

	access, accessErr := s.tokens.SignAccess(claims.UserID, now)
	if accessErr != nil {
		return identity.User{}, Pair{}, accessErr
	}
	refresh, jti, refreshExp, err := s.tokens.SignRefresh(claims.UserID, now)
	if err != nil {
		return identity.User{}, Pair{}, err
	}

	err = s.ledger.Rotate(ctx, claims.JTI(), ledger.Record{
		JTI:       jti,
		UserID:    claims.UserID,
		IssuedAt:  now,
		ExpiresAt: refreshExp,
	}, now)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrRevoked):
		// A spent token came back. Someone is replaying it, or the
		// legitimate client lost a race with a thief. Revoke the lot.
		n, revErr := s.ledger.RevokeAll(ctx, claims.UserID, now)
		if revErr != nil {
			s.log.ErrorContext(ctx, "revoke-all after replay failed",
				"user_id", claims.UserID, "error", revErr)
		}
		s.log.WarnContext(ctx, "refresh token replay detected",
			"user_id", claims.UserID, "revoked", n)
		return identity.User{}, Pair{}, ErrUnauthorized
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrExpired):
		return identity.User{}, Pair{}, ErrUnauthorized
	default:
		return identity.User{}, Pair{}, err
	}

	return u, Pair{
		AccessToken:  access,
		AccessExp:    now.Add(s.tokens.AccessTTL()),
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}

// Logout revokes the presented refresh token's ledger row. An invalid or
// already-revoked token is not an error; logout succeeds regardless so
// the client can always clear its state.
func (s *Service) Logout(ctx context.Context, now time.Time, refreshToken string) error {
	claims, err := s.tokens.Verify(refreshToken, token.KindRefresh, now)
	if err != nil {
		// Nothing to revoke server-side.
		return nil
	}

	if err := s.ledger.Revoke(ctx, claims.JTI(), now); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "logout", "user_id", claims.UserID)
	return nil
}

// LogoutAll revokes every live refresh token for a user.
func (s *Service) LogoutAll(ctx context.Context, now time.Time, userID string) (int64, error) {
	n, err := s.ledger.RevokeAll(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	s.log.InfoContext(ctx, "logout all", "user_id", userID, "revoked", n)
	return n, nil
}

// CurrentUser loads the account behind an authenticated request.
func (s *Service) CurrentUser(ctx context.Context, userID string) (identity.User, error) {
	return s.users.GetByID(ctx, userID)
}

// issuePair mints both tokens and records the refresh jti.
func (s *Service) issuePair(ctx context.Context, now time.Time, userID string) (Pair, error) {
	access, err := s.tokens.SignAccess(userID, now)
	if err != nil {
		return Pair{}, err
	}
	refresh, jti, refreshExp, err := s.tokens.SignRefresh(userID, now)
	if err != nil {
		return Pair{}, err
	}

	if err := s.ledger.Persist(ctx, ledger.Record{
		JTI:       jti,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: refreshExp,
	}); err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  access,
		AccessExp:    now.Add(s.tokens.AccessTTL()),
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}
