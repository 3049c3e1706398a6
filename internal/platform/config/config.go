// Package config reads process configuration from the environment. A .env
// file in the working directory, when present, seeds variables that are not
// already set.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       Server
	Store        Store
	Firebase     Firebase
	Blob         Blob
	Redis        Redis
	Kafka        Kafka
	Imaging      Imaging
	Pickup       Pickup
	Verification Verification
	RateLimit    RateLimit
	Brand        Brand
	Log          Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	// PublicBaseURL prefixes deep links sent to residents.
	PublicBaseURL   string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	ShutdownTimeout time.Duration

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the socket peer is the client.
	TrustedProxies []netip.Prefix
}

type Store struct {
	// Backend is memory, postgres or firestore.
	Backend     string
	PostgresDSN string
	MaxConns    int
}

type Firebase struct {
	ProjectID       string
	CredentialsPath string
	StorageBucket   string
	EmulatorHost    string
}

type Blob struct {
	// Backend is bolt or firebase.
	Backend  string
	BoltPath string
}

type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ViewCacheTTL time.Duration
}

type Kafka struct {
	Brokers     []string
	OutboxTopic string
	Partitions  int32
	Replication int16
}

type Imaging struct {
	DocumentMaxWidth int
	InlineMaxWidth   int
	Quality          int
	Timeout          time.Duration
}

type Pickup struct {
	RequireResidentSignature bool
	RequireCollectorDocument bool
	RequireHandoffPhoto      bool
}

type Verification struct {
	CodeSecret string
}

// RateLimit bounds anonymous deep-link reads per client IP.
type RateLimit struct {
	Disabled bool
	Requests int
	Window   time.Duration
}

type Brand struct {
	PrimaryColor string
	LogoPath     string
}

type Log struct {
	Level  string
	Format string
}

const devSecret = "dev-secret-key-change-in-production"

// FromEnv builds the configuration. It fails only on values that cannot be
// parsed; missing values take development defaults.
func FromEnv() (Config, error) {
	_ = godotenv.Load()
	r := reader{}

	cfg := Config{
		Server: Server{
			Addr:            r.str("FRONTDESK_ADDR", ":8080"),
			PublicBaseURL:   strings.TrimRight(r.str("FRONTDESK_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			JWTSigningKey:   r.str("JWT_SIGNING_KEY", devSecret),
			JWTIssuer:       r.str("JWT_ISSUER", "frontdesk"),
			JWTAudience:     r.str("JWT_AUDIENCE", "frontdesk-api"),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 30*time.Second),

			ReadHeaderTimeout: r.duration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       r.duration("HTTP_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:      r.duration("HTTP_WRITE_TIMEOUT", 90*time.Second),
			IdleTimeout:       r.duration("HTTP_IDLE_TIMEOUT", 120*time.Second),
			TrustedProxies:    r.prefixes("TRUSTED_PROXIES"),
		},
		Store: Store{
			Backend:     strings.ToLower(r.str("STORE_BACKEND", "memory")),
			PostgresDSN: r.str("DATABASE_URL", ""),
			MaxConns:    r.integer("DATABASE_MAX_CONNS", 10),
		},
		Firebase: Firebase{
			ProjectID:       r.str("FIREBASE_PROJECT_ID", ""),
			CredentialsPath: r.str("FIREBASE_CREDENTIALS_PATH", ""),
			StorageBucket:   r.str("FIREBASE_STORAGE_BUCKET", ""),
			EmulatorHost:    r.str("FIRESTORE_EMULATOR_HOST", ""),
		},
		Blob: Blob{
			Backend:  strings.ToLower(r.str("BLOB_BACKEND", "bolt")),
			BoltPath: r.str("BLOB_BOLT_PATH", "frontdesk-blobs.db"),
		},
		Redis: Redis{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ViewCacheTTL: r.duration("VIEW_CACHE_TTL", 5*time.Minute),
		},
		Kafka: Kafka{
			Brokers:     r.list("KAFKA_BROKERS"),
			OutboxTopic: r.str("KAFKA_OUTBOX_TOPIC", "frontdesk.notifications"),
			Partitions:  int32(r.integer("KAFKA_OUTBOX_PARTITIONS", 3)),
			Replication: int16(r.integer("KAFKA_OUTBOX_REPLICATION", 1)),
		},
		Imaging: Imaging{
			DocumentMaxWidth: r.integer("IMAGE_DOCUMENT_MAX_WIDTH", 1280),
			InlineMaxWidth:   r.integer("IMAGE_INLINE_MAX_WIDTH", 480),
			Quality:          r.integer("IMAGE_JPEG_QUALITY", 75),
			Timeout:          r.duration("IMAGE_TIMEOUT", 8*time.Second),
		},
		Pickup: Pickup{
			RequireResidentSignature: r.boolean("PICKUP_REQUIRE_SIGNATURE", false),
			RequireCollectorDocument: r.boolean("PICKUP_REQUIRE_DOCUMENT", false),
			RequireHandoffPhoto:      r.boolean("PICKUP_REQUIRE_PHOTO", false),
		},
		Verification: Verification{
			CodeSecret: r.str("VERIFICATION_CODE_SECRET", devSecret),
		},
		RateLimit: RateLimit{
			Disabled: r.boolean("RATE_LIMIT_DISABLED", false),
			Requests: r.integer("RATE_LIMIT_PUBLIC_REQUESTS", 60),
			Window:   r.duration("RATE_LIMIT_PUBLIC_WINDOW", time.Minute),
		},
		Brand: Brand{
			PrimaryColor: r.str("BRAND_PRIMARY_COLOR", ""),
			LogoPath:     r.str("BRAND_LOGO_PATH", ""),
		},
		Log: Log{
			Level:  r.str("LOG_LEVEL", "info"),
			Format: r.str("LOG_FORMAT", "json"),
		},
	}
	if len(r.errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(r.errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case "memory", "firestore":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("invalid configuration: DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("invalid configuration: unknown STORE_BACKEND %q", c.Store.Backend)
	}
	switch c.Blob.Backend {
	case "bolt":
	case "firebase":
		if c.Firebase.StorageBucket == "" {
			return fmt.Errorf("invalid configuration: FIREBASE_STORAGE_BUCKET is required for the firebase blob store")
		}
	default:
		return fmt.Errorf("invalid configuration: unknown BLOB_BACKEND %q", c.Blob.Backend)
	}
	return nil
}

// UsesDevSecrets reports whether signing keys were left at their defaults.
func (c Config) UsesDevSecrets() bool {
	return c.Server.JWTSigningKey == devSecret || c.Verification.CodeSecret == devSecret
}

type reader struct {
	errs []string
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, key+" must be an integer")
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, key+" must be a boolean")
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, key+" must be a duration")
		return def
	}
	return d
}

func (r *reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// prefixes reads a list of CIDRs. A bare address is taken as a single-host
// prefix.
func (r *reader) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, raw := range r.list(key) {
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			r.errs = append(r.errs, key+" must list IP addresses or CIDRs")
			return nil
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}
