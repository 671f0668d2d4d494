package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SessionPolicy decides how session expiry moves after issuance
type SessionPolicy string

const (
	// PolicyFixed expires a session a fixed TTL after issuance
	PolicyFixed SessionPolicy = "fixed"
	// PolicySliding pushes expiry forward by the TTL on every use
	PolicySliding SessionPolicy = "sliding"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the process configuration, read once at startup
type Config struct {
	Addr string

	Domain          string
	URI             string
	Statement       string
	IncludeIssuedAt bool
	ChainIDs        []uint64

	NonceTTL      time.Duration
	SessionTTL    time.Duration
	SessionPolicy SessionPolicy
	MaxLifetime   time.Duration // sliding sessions never outlive this
	SweepInterval time.Duration

	CookieName   string
	CookieSecure bool

	StoreBackend string
	RedisURL     string
	StoreTimeout time.Duration
	DatabaseURL  string

	JWTSigningKey string // PEM EC private key; generated when empty
	EventsEnabled bool

	CORSOrigins []string

	RegistryRPCURL   string
	RegistryAddress  string
	RegistryRequired bool

	LogLevel  string
	LogFormat string
}

// FromEnv builds a Config from environment variables so main stays lean
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	p := parser{lookup: lookup}
	cfg := Config{
		Addr:            p.str("SIWE_ADDR", ":9000"),
		Domain:          p.str("SIWE_DOMAIN", "localhost"),
		URI:             p.str("SIWE_URI", "http://localhost:8000"),
		Statement:       p.str("SIWE_STATEMENT", ""),
		IncludeIssuedAt: p.boolean("SIWE_ISSUED_AT", false),
		ChainIDs:        p.chainIDs("SIWE_CHAIN_IDS"),

		NonceTTL:      p.duration("NONCE_TTL", 5*time.Minute),
		SessionTTL:    p.duration("SESSION_TTL", time.Hour),
		SessionPolicy: SessionPolicy(p.str("SESSION_POLICY", string(PolicyFixed))),
		MaxLifetime:   p.duration("SESSION_MAX_LIFETIME", 7*24*time.Hour),
		SweepInterval: p.duration("SWEEP_INTERVAL", time.Minute),

		CookieName:   p.str("SESSION_COOKIE_NAME", "eco_session"),
		CookieSecure: p.boolean("SESSION_COOKIE_SECURE", false),

		StoreBackend: p.str("STORE_BACKEND", BackendMemory),
		RedisURL:     p.str("REDIS_URL", "redis://localhost:6379/0"),
		StoreTimeout: p.duration("STORE_TIMEOUT", 2*time.Second),
		DatabaseURL:  p.str("DATABASE_URL", ""),

		JWTSigningKey: p.str("JWT_SIGNING_KEY", ""),
		EventsEnabled: p.boolean("EVENTS_ENABLED", false),

		CORSOrigins: p.list("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:19000"}),

		RegistryRPCURL:   p.str("REGISTRY_RPC_URL", ""),
		RegistryAddress:  p.str("REGISTRY_ADDRESS", ""),
		RegistryRequired: p.boolean("REGISTRY_REQUIRED", false),

		LogLevel:  p.str("LOG_LEVEL", "info"),
		LogFormat: p.str("LOG_FORMAT", "json"),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the service cannot run with
func (c Config) Validate() error {
	switch {
	case c.Domain == "" || strings.ContainsAny(c.Domain, " \n"):
		return fmt.Errorf("SIWE_DOMAIN %q is not a valid domain", c.Domain)
	case c.URI == "" || strings.Contains(c.URI, "\n"):
		return fmt.Errorf("SIWE_URI %q is not a valid uri", c.URI)
	case strings.Contains(c.Statement, "\n"):
		return fmt.Errorf("SIWE_STATEMENT must be a single line")
	case strings.HasPrefix(c.Statement, "URI: "):
		return fmt.Errorf("SIWE_STATEMENT must not look like a message field")
	case c.NonceTTL <= 0 || c.SessionTTL <= 0 || c.StoreTimeout <= 0 || c.SweepInterval <= 0 || c.MaxLifetime <= 0:
		return fmt.Errorf("durations must be positive")
	case c.MaxLifetime < c.SessionTTL:
		return fmt.Errorf("SESSION_MAX_LIFETIME must not be shorter than SESSION_TTL")
	case c.SessionPolicy != PolicyFixed && c.SessionPolicy != PolicySliding:
		return fmt.Errorf("unknown SESSION_POLICY %q", c.SessionPolicy)
	case c.StoreBackend != BackendMemory && c.StoreBackend != BackendRedis:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	case c.CookieName == "":
		return fmt.Errorf("SESSION_COOKIE_NAME must not be empty")
	case c.RegistryRequired && (c.RegistryRPCURL == "" || c.RegistryAddress == ""):
		return fmt.Errorf("REGISTRY_REQUIRED needs REGISTRY_RPC_URL and REGISTRY_ADDRESS")
	case c.EventsEnabled && c.RedisURL == "":
		return fmt.Errorf("EVENTS_ENABLED needs REDIS_URL")
	}
	return nil
}

type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) str(key, def string) string {
	if v, ok := p.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) boolean(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) list(key string, def []string) []string {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (p *parser) chainIDs(key string) []uint64 {
	var ids []uint64
	for _, item := range p.list(key, nil) {
		id, err := strconv.ParseUint(item, 10, 64)
		if err != nil || id == 0 {
			p.fail(key, fmt.Errorf("bad chain id %q", item))
			return nil
		}
		ids = append(ids, id)
	}
	return ids
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
	}
}
