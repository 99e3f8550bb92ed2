package classify

import (
	"regexp"
	"strings"
)

// textRule matches untyped error text. Rules are evaluated in order and the
// first match wins, so more specific categories come first ("invalid token"
// is an authentication failure, not a validation failure).
type textRule struct {
	category Category
	phrases  []string
	codes    *regexp.Regexp
}

var textRules = []textRule{
	{
		category: CategoryRateLimit,
		phrases: []string{
			"rate limit",
			"ratelimit",
			"too many requests",
			"throttl",
			"quota exceeded",
			"resource exhausted",
			"count exceeded",
		},
		codes: regexp.MustCompile(`\b429\b`),
	},
	{
		category: CategoryTimeout,
		phrases: []string{
			"timeout",
			"timed out",
			"deadline exceeded",
			"etimedout",
		},
		codes: regexp.MustCompile(`\b(408|504)\b`),
	},
	{
		category: CategoryAuthentication,
		phrases: []string{
			"unauthorized",
			"unauthenticated",
			"authentication",
			"invalid token",
			"token expired",
			"expired token",
			"invalid credentials",
			"not authenticated",
			"signature does not match",
		},
		codes: regexp.MustCompile(`\b401\b`),
	},
	{
		category: CategoryPermission,
		phrases: []string{
			"forbidden",
			"permission",
			"access denied",
			"not allowed",
			"not authorized",
		},
		codes: regexp.MustCompile(`\b403\b`),
	},
	{
		category: CategoryServiceUnavailable,
		phrases: []string{
			"service unavailable",
			"temporarily unavailable",
			"bad gateway",
			"internal server error",
			"overloaded",
			"circuit open",
			"unavailable",
		},
		codes: regexp.MustCompile(`\b(500|502|503)\b`),
	},
	{
		category: CategoryNetwork,
		phrases: []string{
			"network",
			"connection refused",
			"connection reset",
			"connection closed",
			"econnrefused",
			"econnreset",
			"enotfound",
			"no such host",
			"broken pipe",
			"socket",
			"failed to fetch",
			"eof",
		},
	},
	{
		category: CategoryValidation,
		phrases: []string{
			"invalid",
			"validation",
			"bad request",
			"malformed",
			"required",
			"unsupported",
		},
		codes: regexp.MustCompile(`\b(400|422)\b`),
	},
}

// matchText classifies untyped error text. It never fails; unmatched text is
// CategoryUnknown.
func matchText(message string) Category {
	lower := strings.ToLower(message)
	if strings.TrimSpace(lower) == "" {
		return CategoryUnknown
	}

	for _, rule := range textRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(lower, phrase) {
				return rule.category
			}
		}
		if rule.codes != nil && rule.codes.MatchString(lower) {
			return rule.category
		}
	}
	return CategoryUnknown
}
