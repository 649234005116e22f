package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key on create endpoints.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set on responses served from a recorded result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey      = "idem.key"
	ctxKeyIdemScope    = "idem.scope"
	ctxKeyIdemResource = "idem.resource"
	ctxKeyRateBypass   = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyLookup reports the resource created by an earlier request with
// the same (user, scope, key), if that record is still inside its window.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (resourceID string, found bool, err error)

// IdempotencyOptions configures Idempotency.
type IdempotencyOptions struct {
	MaxLen  int                         // <= 0 means 200
	Pattern *regexp.Regexp              // nil means token characters only
	Scope   func(c *gin.Context) string // nil means DefaultScope
	Now     func() time.Time            // nil means time.Now
}

// DefaultScope names the operation a key applies to: "items" for item
// creation and "claims:<item-id>" for claim submission. Other routes use their
// route pattern.
func DefaultScope(c *gin.Context) string {
	fp := c.FullPath()
	switch {
	case strings.HasSuffix(fp, "/items/:id/claims"):
		return "claims:" + c.Param("id")
	case strings.HasSuffix(fp, "/items"):
		return "items"
	}
	return fp
}

// Idempotency validates the Idempotency-Key header and, when a recorded
// result exists, marks the request as a replay and lets it skip the rate
// limiter. Handlers decide how to serve the replay via ReplayResourceID.
// Lookup failures are ignored so the request is processed normally.
func Idempotency(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	scopeFn := opts.Scope
	if scopeFn == nil {
		scopeFn = DefaultScope
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abort(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}

		scope := scopeFn(c)
		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scope)

		if lookup != nil {
			rid, found, err := lookup(c.Request.Context(), UserID(c), scope, key, now().UTC())
			if err == nil && found && rid != "" {
				c.Set(ctxKeyIdemResource, rid)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// IdempotencyKey returns the validated key and its scope.
func IdempotencyKey(c *gin.Context) (key, scope string, ok bool) {
	key = ctxString(c, ctxKeyIdemKey)
	scope = ctxString(c, ctxKeyIdemScope)
	return key, scope, key != ""
}

// ReplayResourceID returns the id recorded for a replayed request.
func ReplayResourceID(c *gin.Context) (string, bool) {
	id := ctxString(c, ctxKeyIdemResource)
	return id, id != ""
}
