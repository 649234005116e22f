package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Identity headers accepted when no JWT secret is configured.
const (
	HeaderUserID   = "X-User-ID"
	HeaderTenantID = "X-Tenant-ID"
	HeaderRole     = "X-User-Role"
)

// Claims is the bearer token payload. The subject is the user id.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret verifies HS256 bearer tokens. Empty switches to header identity,
	// which is meant for local development and tests.
	Secret []byte
	// DefaultTenant is used when a header-identified request omits X-Tenant-ID.
	DefaultTenant string
}

// Auth resolves the caller identity and stores it in the gin context.
// Requests without an identity are rejected with 401.
func Auth(opts AuthOptions) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFn := func(*jwt.Token) (any, error) { return opts.Secret, nil }

	return func(c *gin.Context) {
		var uid, tenant, role string

		if len(opts.Secret) > 0 {
			raw, ok := bearerToken(c.GetHeader("Authorization"))
			if !ok {
				abort(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			claims := &Claims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFn); err != nil {
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token expired"
				}
				abort(c, http.StatusUnauthorized, "unauthorized", msg)
				return
			}
			uid, tenant, role = claims.Subject, claims.TenantID, claims.Role
		} else {
			uid = strings.TrimSpace(c.GetHeader(HeaderUserID))
			tenant = strings.TrimSpace(c.GetHeader(HeaderTenantID))
			role = strings.TrimSpace(c.GetHeader(HeaderRole))
			if tenant == "" {
				tenant = opts.DefaultTenant
			}
		}

		if uid == "" || tenant == "" {
			abort(c, http.StatusUnauthorized, "unauthorized", "identity required")
			return
		}
		c.Set(ctxUserID, uid)
		c.Set(ctxTenantID, tenant)
		c.Set(ctxRole, role)
		c.Next()
	}
}

// RequireRole rejects callers whose role differs from role with 403.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Role(c) != role {
			abort(c, http.StatusForbidden, "forbidden", "insufficient role")
			return
		}
		c.Next()
	}
}

func bearerToken(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
