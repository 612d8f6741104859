package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds, pinned in the "typ" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Default lifetimes. Access tokens are short enough that revocation can be
// stateless; refresh tokens live long and answer to the ledger.
const (
	DefaultAccessTTL  = 10 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the payload carried by every gate token.
type Claims struct {
	UserID string `json:"uid"`
	Kind   string `json:"typ"`
	jwt.RegisteredClaims
}

// JTI returns the token's unique id. Empty for access tokens.
func (c Claims) JTI() string { return c.ID }

// Config configures an Issuer. Secret is the HMAC key and must be set;
// everything else has a usable zero/default.
type Config struct {
	Secret     []byte
	Issuer     string
	KeyID      string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Issuer signs and verifies gate tokens. Safe for concurrent use.
type Issuer struct {
	cfg Config
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("token: secret must be at least 32 bytes, got %d", len(cfg.Secret))
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("token: leeway out of range: %s", cfg.Leeway)
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	return &Issuer{cfg: cfg}, nil
}

// AccessTTL reports the configured access-token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.cfg.AccessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.cfg.RefreshTTL }

// SignAccess mints a short-lived access token for userID.
func (i *Issuer) SignAccess(userID string, now time.Time) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("token: empty user id")
	}
	return i.sign(Claims{
		UserID: userID,
		Kind:   KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.AccessTTL)),
		},
	})
}

// SignRefresh mints a refresh token for userID with a fresh random jti.
// The jti and expiry are returned so the caller can persist the ledger row.
func (i *Issuer) SignRefresh(userID string, now time.Time) (signed, jti string, expiresAt time.Time, err error) {
	if userID == "" {
		return "", "", time.Time{}, fmt.Errorf("token: empty user id")
	}

	jti = uuid.NewString()
	expiresAt = now.Add(i.cfg.RefreshTTL)

	signed, err = i.sign(Claims{
		UserID: userID,
		Kind:   KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, expiresAt, nil
}

// Verify checks signature, expiry, issuer, and kind, and returns the claims.
// Expired-but-otherwise-valid tokens get ErrTokenExpired; every other
// failure collapses to ErrTokenInvalid.
func (i *Issuer) Verify(tokenStr, wantKind string, now time.Time) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if i.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(i.cfg.Leeway))
	}
	if i.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.cfg.Issuer))
	}

	parser := jwt.NewParser(opts...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if i.cfg.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != i.cfg.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return i.cfg.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}
	if claims.Kind != wantKind || claims.UserID == "" {
		return Claims{}, ErrTokenInvalid
	}
	if wantKind == KindRefresh && claims.ID == "" {
		return Claims{}, ErrTokenInvalid
	}

	return *claims, nil
}

func (i *Issuer) sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if i.cfg.KeyID != "" {
		tok.Header["kid"] = i.cfg.KeyID
	}
	return tok.SignedString(i.cfg.Secret)
}
