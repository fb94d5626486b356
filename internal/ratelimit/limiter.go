// Package ratelimit provides per-tool rate limiting for MCP tools.
package ratelimit

import (
	"fmt"

	"golang.org/x/time/rate"
)

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*rate.Limiter

// perMinute builds a limiter allowing n calls per minute with the given burst.
func perMinute(n float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(n/60.0), burst)
}

// NewToolLimiters creates the default set of per-tool rate limiters.
// Reads are generous; writes that rewrite the state document are tighter.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"review_order":    perMinute(120, 20),
		"review_node":     perMinute(240, 40),
		"review_status":   perMinute(240, 40),
		"review_summary":  perMinute(60, 10),
		"review_tree":     perMinute(60, 10),
		"review_validate": perMinute(30, 5),
		"review_accept":   perMinute(60, 10),
		"review_reject":   perMinute(60, 10),
	}
}

// CheckLimit checks the rate limit for a given tool name.
// Returns nil if allowed, or an error if rate limited.
// Tools without a configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}

	if !limiter.Allow() {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}

	return nil
}
