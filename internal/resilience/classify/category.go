// Package classify turns raw failures from any collaborator into typed,
// categorized errors carrying severity, user-facing text and recovery hints.
package classify

// Category is the failure taxonomy. It is total: every failure maps to
// exactly one category, defaulting to CategoryUnknown.
type Category string

const (
	CategoryNetwork            Category = "NETWORK"
	CategoryServiceUnavailable Category = "SERVICE_UNAVAILABLE"
	CategoryAuthentication     Category = "AUTHENTICATION"
	CategoryValidation         Category = "VALIDATION"
	CategoryPermission         Category = "PERMISSION"
	CategoryRateLimit          Category = "RATE_LIMIT"
	CategoryTimeout            Category = "TIMEOUT"
	CategoryUnknown            Category = "UNKNOWN"
)

// Categories lists every category, UNKNOWN last.
var Categories = []Category{
	CategoryNetwork,
	CategoryServiceUnavailable,
	CategoryAuthentication,
	CategoryValidation,
	CategoryPermission,
	CategoryRateLimit,
	CategoryTimeout,
	CategoryUnknown,
}

// Retryable reports whether failures in this category may be retried
// automatically.
func (c Category) Retryable() bool {
	switch c {
	case CategoryNetwork, CategoryServiceUnavailable, CategoryTimeout, CategoryRateLimit:
		return true
	default:
		return false
	}
}

// Severity ranks how urgently a failure needs attention.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the severity by name in JSON and logs.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var baseSeverity = map[Category]Severity{
	CategoryNetwork:            SeverityMedium,
	CategoryServiceUnavailable: SeverityMedium,
	CategoryAuthentication:     SeverityHigh,
	CategoryValidation:         SeverityLow,
	CategoryPermission:         SeverityHigh,
	CategoryRateLimit:          SeverityMedium,
	CategoryTimeout:            SeverityMedium,
	CategoryUnknown:            SeverityMedium,
}

// SeverityFor derives severity from the category and whether the failing
// dependency is critical. Non-critical dependencies never exceed HIGH.
func SeverityFor(category Category, critical bool) Severity {
	severity, ok := baseSeverity[category]
	if !ok {
		severity = SeverityMedium
	}

	if !critical {
		if severity > SeverityHigh {
			return SeverityHigh
		}
		return severity
	}

	switch category {
	case CategoryServiceUnavailable, CategoryNetwork:
		return SeverityHigh
	case CategoryAuthentication, CategoryPermission:
		return SeverityCritical
	}
	return severity
}
