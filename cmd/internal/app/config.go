package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// DatabaseURL empty means in-memory stores: fine for development,
	// every restart forgets everything.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	// Migrate applies the embedded schema migrations at startup.
	Migrate bool

	// RedisURL empty disables login throttling.
	RedisURL            string
	LoginMaxAttempts    int
	LoginAttemptsWindow time.Duration

	// TokenSecret signs every token; the process refuses to start
	// without one of at least 32 bytes.
	TokenSecret string
	TokenIssuer string
	TokenKeyID  string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration

	ResetTokenTTL time.Duration

	// CORSOrigin is the single allowed browser origin. Empty disables
	// CORS headers entirely.
	CORSOrigin string

	// If true, /readyz returns 503 unless the DB is configured and
	// reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("GATE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("GATE_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("GATE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("GATE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("GATE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("GATE_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("GATE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("GATE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("GATE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("GATE_DB_MIN_CONNS", 0),
		Migrate:     EnvBool("GATE_DB_MIGRATE", true),

		RedisURL:            EnvString("GATE_REDIS_URL", ""),
		LoginMaxAttempts:    EnvInt("GATE_LOGIN_MAX_ATTEMPTS", 10),
		LoginAttemptsWindow: EnvDuration("GATE_LOGIN_ATTEMPTS_WINDOW", 15*time.Minute),

		TokenSecret: EnvString("GATE_TOKEN_SECRET", ""),
		TokenIssuer: EnvString("GATE_TOKEN_ISSUER", "gate"),
		TokenKeyID:  EnvString("GATE_TOKEN_KEY_ID", ""),
		AccessTTL:   EnvDuration("GATE_ACCESS_TTL", 10*time.Minute),
		RefreshTTL:  EnvDuration("GATE_REFRESH_TTL", 7*24*time.Hour),

		ResetTokenTTL: EnvDuration("GATE_RESET_TOKEN_TTL", time.Hour),

		CORSOrigin: EnvString("GATE_CORS_ORIGIN", ""),

		ReadinessRequireDB: EnvBool("GATE_READINESS_REQUIRE_DB", false),
	}
}
