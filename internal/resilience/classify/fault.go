package classify

import (
	"fmt"
	"net/http"
	"time"

	"github.com/vietddude/medlingo/internal/core/domain"
)

// Categorized is implemented by errors that already know their category.
// Collaborators raise these instead of relying on message text.
type Categorized interface {
	error
	FaultCategory() Category
}

// Fault is a tagged failure carrying an explicit category.
type Fault struct {
	Category   Category
	Dependency domain.Dependency
	RetryAfter time.Duration
	Err        error
}

// Tag wraps err with an explicit category.
func Tag(category Category, dep domain.Dependency, err error) *Fault {
	return &Fault{Category: category, Dependency: dep, Err: err}
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s failure (%s)", f.Category, f.Dependency)
	}
	if f.Dependency == "" {
		return f.Err.Error()
	}
	return fmt.Sprintf("%s: %v", f.Dependency, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// FaultCategory implements Categorized.
func (f *Fault) FaultCategory() Category { return f.Category }

// StatusError is returned by REST collaborators for non-2xx responses.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.StatusCode)
	if e.Message != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, text, e.Message)
	}
	return fmt.Sprintf("http %d %s", e.StatusCode, text)
}

func categoryForStatus(code int) (Category, bool) {
	switch {
	case code == http.StatusUnauthorized:
		return CategoryAuthentication, true
	case code == http.StatusForbidden:
		return CategoryPermission, true
	case code == http.StatusTooManyRequests:
		return CategoryRateLimit, true
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return CategoryTimeout, true
	case code >= 500:
		return CategoryServiceUnavailable, true
	case code >= 400:
		return CategoryValidation, true
	}
	return "", false
}
