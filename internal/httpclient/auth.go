package httpclient

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Auth types.
const (
	AuthNone   = ""
	AuthBasic  = "basic"
	AuthBearer = "bearer"
	AuthJWT    = "jwt"
)

// AuthConfig holds request authentication settings.
type AuthConfig struct {
	Type     string    `yaml:"type" toml:"type"` // "", basic, bearer, jwt
	Username string    `yaml:"username" toml:"username"`
	Password string    `yaml:"password" toml:"password"`
	Token    string    `yaml:"token" toml:"token"` // static bearer token
	JWT      JWTConfig `yaml:"jwt" toml:"jwt"`
}

// JWTConfig configures HS256 tokens minted per client.
type JWTConfig struct {
	Secret   string        `yaml:"secret" toml:"secret"`
	Issuer   string        `yaml:"issuer" toml:"issuer"`
	Subject  string        `yaml:"subject" toml:"subject"`
	Audience string        `yaml:"audience" toml:"audience"`
	TTL      time.Duration `yaml:"ttl" toml:"ttl"`
}

// Validate returns an error if the configuration is invalid.
func (c AuthConfig) Validate() error {
	switch c.Type {
	case AuthNone:
		return nil
	case AuthBasic:
		if c.Username == "" {
			return fmt.Errorf("basic auth requires a username")
		}
	case AuthBearer:
		if c.Token == "" {
			return fmt.Errorf("bearer auth requires a token")
		}
	case AuthJWT:
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt auth requires a secret")
		}
	default:
		return fmt.Errorf("unknown auth type %q (must be basic, bearer or jwt)", c.Type)
	}
	return nil
}

type authenticator interface {
	apply(req *http.Request) error
}

func newAuthenticator(cfg AuthConfig) (authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case AuthBasic:
		return basicAuth{username: cfg.Username, password: cfg.Password}, nil
	case AuthBearer:
		return bearerAuth{token: cfg.Token}, nil
	case AuthJWT:
		return newTokenMinter(cfg.JWT, time.Now), nil
	}
	return noAuth{}, nil
}

type noAuth struct{}

func (noAuth) apply(*http.Request) error { return nil }

type basicAuth struct {
	username string
	password string
}

func (a basicAuth) apply(req *http.Request) error {
	req.SetBasicAuth(a.username, a.password)
	return nil
}

type bearerAuth struct {
	token string
}

func (a bearerAuth) apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.token)
	return nil
}

// tokenMinter signs short-lived tokens and reuses one until it is close to expiry.
type tokenMinter struct {
	cfg JWTConfig
	now func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

const (
	defaultTokenTTL = 5 * time.Minute
	tokenRenewSlack = 30 * time.Second
)

func newTokenMinter(cfg JWTConfig, now func() time.Time) *tokenMinter {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTokenTTL
	}
	return &tokenMinter{cfg: cfg, now: now}
}

func (m *tokenMinter) apply(req *http.Request) error {
	token, err := m.Token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Token returns a valid signed token.
func (m *tokenMinter) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.token != "" && now.Add(tokenRenewSlack).Before(m.expires) {
		return m.token, nil
	}

	expires := now.Add(m.cfg.TTL)
	claims := jwt.RegisteredClaims{
		Issuer:    m.cfg.Issuer,
		Subject:   m.cfg.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	m.token = signed
	m.expires = expires
	return signed, nil
}
