// Package auth implements C7: issue/verify short-lived bearer tokens,
// extracting a stable tenant identifier (spec §4.7). Grounded on
// steveyegge-beads's go.mod choice of golang-jwt/jwt/v5 (the teacher
// itself has no auth layer — its web server is localhost-only).
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
	"github.com/bigwolfeman/document-mcp/internal/config"
)

// Service issues and verifies bearer tokens.
type Service struct {
	cfg config.Config
}

func New(cfg config.Config) *Service {
	return &Service{cfg: cfg}
}

type claims struct {
	Tenant string `json:"tenant"`
	jwt.RegisteredClaims
}

// Issue mints a signed token for tenant, valid for ttl (or the config
// default when ttl <= 0).
func (s *Service) Issue(tenant string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(tenant) == "" {
		return "", time.Time{}, apperr.Validation("validation_error: tenant is required")
	}
	if ttl <= 0 {
		ttl = s.cfg.Auth.TokenTTL
	}
	expiresAt := time.Now().Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Tenant: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	signed, err := token.SignedString([]byte(s.cfg.Auth.Secret))
	if err != nil {
		return "", time.Time{}, apperr.Internal("failed to sign token", err)
	}
	return signed, expiresAt, nil
}

// staticDevToken and staticDemoToken are the two hard-coded tokens spec
// §4.7 describes ("a ChatGPT-style service token"); both MUST be rejected
// once Production is true.
const staticDevToken = "dev-local-static-token"
const staticDemoToken = "demo-static-token"

// Verify extracts a tenant from a bare bearer token (the "Bearer " prefix
// already stripped); ExtractBearer below does the header parsing for
// façade use and then calls Verify with the token part.
func (s *Service) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperr.Unauthorized("missing_header: no bearer token presented")
	}

	if token == staticDevToken || token == staticDemoToken {
		if s.cfg.Production {
			return "", apperr.Unauthorized("token_invalid: static dev/demo tokens are rejected in production")
		}
		if token == staticDevToken {
			return s.cfg.Auth.DevTenant, nil
		}
		return s.cfg.Auth.DemoTenant, nil
	}

	if s.cfg.Production && s.cfg.Auth.DevSecret {
		return "", apperr.Unauthorized("secret_not_configured: production deployment has no signing secret configured")
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.Auth.Secret), nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "token is expired") {
			return "", apperr.Unauthorized("token_expired: bearer token has expired")
		}
		return "", apperr.Unauthorized("token_invalid: bearer token failed verification")
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Tenant == "" {
		return "", apperr.Unauthorized("token_invalid: bearer token carries no tenant")
	}
	return c.Tenant, nil
}

// ExtractBearer parses an "Authorization: Bearer <token>" header value and
// verifies it, producing malformed_header/missing_header failures per
// spec §4.7.
func (s *Service) ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperr.Unauthorized("missing_header: Authorization header is required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperr.Unauthorized("malformed_header: expected \"Bearer <token>\"")
	}
	return s.Verify(parts[1])
}
