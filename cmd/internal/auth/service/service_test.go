package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"gate/cmd/identity"
	"gate/cmd/internal/auth/ledger"
	"gate/cmd/internal/auth/token"
)

// fakeUsers is an in-memory identity.Store. Passwords are compared in
// plaintext; hashing is covered by its own package.
type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]identity.User
	byID    map[string]identity.User
	nextID  int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byEmail: make(map[string]identity.User),
		byID:    make(map[string]identity.User),
	}
}

func (f *fakeUsers) Register(_ context.Context, email, pw string, now time.Time) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	email = identity.NormalizeEmail(email)
	if _, ok := f.byEmail[email]; ok {
		return identity.User{}, identity.ErrDuplicateEmail
	}

	f.nextID++
	u := identity.User{
		ID:           string(rune('A' + f.nextID - 1)),
		Email:        email,
		PasswordHash: pw,
		CreatedAt:    now,
	}
	f.byEmail[email] = u
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsers) Verify(_ context.Context, email, pw string) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byEmail[identity.NormalizeEmail(email)]
	if !ok || u.PasswordHash != pw {
		return identity.User{}, identity.ErrInvalidCredentials
	}
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byID[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id, pw string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byID[id]
	if !ok {
		return identity.ErrNotFound
	}
	u.PasswordHash = pw
	f.byID[id] = u
	f.byEmail[u.Email] = u
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeUsers, *ledger.Memory) {
	t.Helper()

	iss, err := token.NewIssuer(token.Config{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "gate-test",
	})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	users := newFakeUsers()
	ledg := ledger.NewMemory()
	return New(users, iss, ledg, slog.New(slog.DiscardHandler)), users, ledg
}

func mustLogin(t *testing.T, svc *Service, now time.Time) (identity.User, Pair) {
	t.Helper()
	ctx := context.Background()

	u, _, err := svc.Register(ctx, now, "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, pair, err := svc.Login(ctx, now, "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("Login returned user %q, want %q", got.ID, u.ID)
	}
	return u, pair
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, _, err := svc.Register(ctx, now, "bob@example.com", "password-one-1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, pair, err := svc.Register(ctx, now, "Bob@Example.com", "password-two-2")
	if !errors.Is(err, identity.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if pair.AccessToken != "" || pair.RefreshToken != "" {
		t.Fatal("no tokens may be minted for a failed registration")
	}
}

func TestRegisterStartsSession(t *testing.T) {
	svc, _, ledg := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u, pair, err := svc.Register(ctx, now, "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// The pair works immediately: access authenticates, refresh rotates.
	claims, err := svc.Authenticate(pair.AccessToken, now)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if claims.UserID != u.ID {
		t.Fatalf("UserID = %q, want %q", claims.UserID, u.ID)
	}
	if _, _, err := svc.Refresh(ctx, now, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// The session is ledger-backed: exactly one live row for the user.
	if n, err := ledg.RevokeAll(ctx, u.ID, now); err != nil || n != 1 {
		t.Fatalf("RevokeAll = (%d, %v), want one live row", n, err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, _, err := svc.Register(ctx, now, "carol@example.com", "right-password-1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, _, err := svc.Login(ctx, now, "carol@example.com", "wrong-password-1")
	if !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginIssuesVerifiablePair(t *testing.T) {
	svc, _, _ := newTestService(t)
	now := time.Now().UTC()

	u, pair := mustLogin(t, svc, now)

	claims, err := svc.Authenticate(pair.AccessToken, now)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if claims.UserID != u.ID {
		t.Fatalf("UserID = %q, want %q", claims.UserID, u.ID)
	}

	if want := now.Add(token.DefaultAccessTTL); !pair.AccessExp.Equal(want) {
		t.Fatalf("AccessExp = %v, want %v", pair.AccessExp, want)
	}
	if want := now.Add(token.DefaultRefreshTTL); !pair.RefreshExp.Equal(want) {
		t.Fatalf("RefreshExp = %v, want %v", pair.RefreshExp, want)
	}
}

func TestAuthenticateExpiredAccess(t *testing.T) {
	svc, _, _ := newTestService(t)
	now := time.Now().UTC()

	_, pair := mustLogin(t, svc, now)

	_, err := svc.Authenticate(pair.AccessToken, now.Add(token.DefaultAccessTTL+time.Second))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRefreshRotates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u, pair := mustLogin(t, svc, now)

	later := now.Add(time.Hour)
	got, next, err := svc.Refresh(ctx, later, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh must mint a new refresh token")
	}
	if got.ID != u.ID || got.Email != u.Email {
		t.Fatalf("Refresh returned user %+v, want %+v", got, u)
	}

	claims, err := svc.Authenticate(next.AccessToken, later)
	if err != nil {
		t.Fatalf("Authenticate new access: %v", err)
	}
	if claims.UserID != u.ID {
		t.Fatalf("UserID = %q, want %q", claims.UserID, u.ID)
	}

	// The spent token is dead.
	if _, _, err := svc.Refresh(ctx, later, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("replay: expected ErrUnauthorized, got %v", err)
	}
}

func TestRefreshReplayRevokesEverything(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, pair := mustLogin(t, svc, now)

	_, next, err := svc.Refresh(ctx, now, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Replay of the spent token burns the whole family: the freshly
	// rotated token must stop working too.
	if _, _, err := svc.Refresh(ctx, now, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("replay: expected ErrUnauthorized, got %v", err)
	}
	if _, _, err := svc.Refresh(ctx, now, next.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("post-replay refresh: expected ErrUnauthorized, got %v", err)
	}
}

func TestRefreshGarbage(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, in := range []string{"", "not-a-token", "a.b.c"} {
		if _, _, err := svc.Refresh(ctx, now, in); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Refresh(%q): expected ErrUnauthorized, got %v", in, err)
		}
	}
}

func TestRefreshWithAccessToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, pair := mustLogin(t, svc, now)

	if _, _, err := svc.Refresh(ctx, now, pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("access-as-refresh: expected ErrUnauthorized, got %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, pair := mustLogin(t, svc, now)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = svc.Refresh(ctx, now, pair.RefreshToken)
		}()
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrUnauthorized):
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
}

func TestLogoutRevokesRefresh(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, pair := mustLogin(t, svc, now)

	if err := svc.Logout(ctx, now, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, now, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh after logout: expected ErrUnauthorized, got %v", err)
	}

	// Logout is idempotent and tolerant of junk.
	if err := svc.Logout(ctx, now, pair.RefreshToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := svc.Logout(ctx, now, "garbage"); err != nil {
		t.Fatalf("Logout(garbage): %v", err)
	}
}

func TestLogoutAll(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u, first := mustLogin(t, svc, now)
	_, second, err := svc.Login(ctx, now, "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}

	n, err := svc.LogoutAll(ctx, now, u.ID)
	if err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	// Register's session plus the two logins.
	if n != 3 {
		t.Fatalf("revoked %d, want 3", n)
	}

	for _, tok := range []string{first.RefreshToken, second.RefreshToken} {
		if _, _, err := svc.Refresh(ctx, now, tok); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("refresh after LogoutAll: expected ErrUnauthorized, got %v", err)
		}
	}
}

func TestCurrentUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u, _ := mustLogin(t, svc, now)

	got, err := svc.CurrentUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Fatalf("Email = %q, want %q", got.Email, "alice@example.com")
	}

	if _, err := svc.CurrentUser(ctx, "nope"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
