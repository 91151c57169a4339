package middleware

import (
	"fmt"
	"strconv"
	"time"

	"card-escrow-ledger/internal/core/ports"
	"card-escrow-ledger/pkg/apperror"
	"card-escrow-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Endpoint groups for rate limiting.
const (
	GroupRegistry   = "registry"
	GroupCardCreate = "cards_create"
	GroupCardWrite  = "cards_write"
	GroupSessions   = "sessions"
	GroupReads      = "reads"
	GroupFaucet     = "faucet"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the rate limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		GroupRegistry:   {Limit: 5, Window: time.Minute},
		GroupCardCreate: {Limit: 10, Window: time.Minute},
		GroupCardWrite:  {Limit: 120, Window: time.Minute},
		GroupSessions:   {Limit: 20, Window: time.Minute},
		GroupReads:      {Limit: 300, Window: time.Minute},
		GroupFaucet:     {Limit: 5, Window: time.Hour},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
func RateLimiter(limiter ports.RateLimiter, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := limiter.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		// Always set rate limit headers
		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys limits by authenticated caller, then by the claimed
// identity header, then by client IP.
func extractIdentifier(c *gin.Context) string {
	if caller, ok := Caller(c); ok {
		return caller.String()
	}
	if id := c.GetHeader(HeaderIdentity); id != "" {
		return id
	}
	return c.ClientIP()
}
