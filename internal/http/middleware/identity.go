// Package middleware holds the gin middleware shared by every route:
// identity, request correlation, access logging, metrics, rate limiting,
// idempotency and security headers.
package middleware

import "github.com/gin-gonic/gin"

// Gin context keys for the caller identity. They are set by Auth.
const (
	ctxUserID   = "userID"
	ctxTenantID = "tenantID"
	ctxRole     = "role"
)

// RoleAdmin unlocks the moderation endpoints.
const RoleAdmin = "admin"

// UserID returns the authenticated user id, or "" when Auth did not run.
func UserID(c *gin.Context) string { return ctxString(c, ctxUserID) }

// TenantID returns the caller's campus.
func TenantID(c *gin.Context) string { return ctxString(c, ctxTenantID) }

// Role returns the caller's role ("" for ordinary users).
func Role(c *gin.Context) string { return ctxString(c, ctxRole) }

func ctxString(c *gin.Context, key string) string {
	if v, ok := c.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// abort writes the shared error envelope. Handlers use their own copy of the
// envelope type; middleware keeps to gin.H so it stays import-free.
func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
