package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Config holds control-surface authentication configuration. Only the
// delete endpoint is guarded; there is no user/session model in this
// service, only a shared control secret.
type Config struct {
	Secret     string        `json:"-"`
	Issuer     string        `json:"issuer"`
	Expiration time.Duration `json:"expiration"`
}

func DefaultConfig() *Config {
	return &Config{
		Issuer:     "ocr-job-service",
		Expiration: 24 * time.Hour,
	}
}

// Claims is the control token's claim set. There is exactly one subject:
// "control" — possession of a validly-signed token is the only authorization
// check, there are no per-token permissions to distinguish.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenIssuer issues and verifies bearer tokens guarding the Control API.
// When Secret is empty, the guard is disabled and every request passes.
type TokenIssuer struct {
	config *Config
	logger zerolog.Logger
}

func NewTokenIssuer(config *Config, logger zerolog.Logger) *TokenIssuer {
	if config == nil {
		config = DefaultConfig()
	}
	return &TokenIssuer{config: config, logger: logger.With().Str("component", "control_token").Logger()}
}

// Enabled reports whether the control token guard is active.
func (ti *TokenIssuer) Enabled() bool {
	return ti.config.Secret != ""
}

// Issue mints a new control token. Nothing in this repository calls it;
// the server itself never issues tokens over HTTP.
func (ti *TokenIssuer) Issue() (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.config.Issuer,
			Subject:   "control",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ti.config.Expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(ti.config.Secret))
}

// Verify checks a raw bearer token string against the configured secret.
func (ti *TokenIssuer) Verify(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(ti.config.Secret), nil
	})
	if err != nil {
		return fmt.Errorf("failed to parse control token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid control token")
	}
	return nil
}

// VerifyHeader extracts and verifies the bearer token from an
// Authorization header value, e.g. "Bearer <token>".
func (ti *TokenIssuer) VerifyHeader(authHeader string) error {
	if authHeader == "" {
		return fmt.Errorf("authorization header required")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return fmt.Errorf("bearer token required")
	}
	return ti.Verify(tokenString)
}

// Middleware provides stdlib http middleware guarding handlers behind a
// valid control token. Kept for parity with other stdlib-http tooling in
// the pack; the Fiber HTTP surface uses VerifyHeader directly instead.
func (ti *TokenIssuer) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ti.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			if err := ti.VerifyHeader(r.Header.Get("Authorization")); err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
