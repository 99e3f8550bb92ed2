package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/medlingo/internal/core/domain"
)

// ContextCorrelationID is the context key whose value, when present, is
// reused as the correlation id instead of generating a new one.
const ContextCorrelationID = "correlationId"

// EnhancedError is the classified form of a raw failure. It is created once
// per failure and must not be modified afterwards.
type EnhancedError struct {
	Category         Category          `json:"category"`
	Severity         Severity          `json:"severity"`
	Dependency       domain.Dependency `json:"dependency"`
	UserMessage      string            `json:"userMessage"`
	TechnicalMessage string            `json:"-"`
	RecoveryActions  []string          `json:"recoveryActions"`
	CorrelationID    string            `json:"correlationId"`
	Retryable        bool              `json:"retryable"`
	RetryAfter       time.Duration     `json:"retryAfter,omitempty"`
	Context          map[string]string `json:"-"`
	OccurredAt       time.Time         `json:"occurredAt"`

	cause error
}

func (e *EnhancedError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Dependency, e.TechnicalMessage)
}

func (e *EnhancedError) Unwrap() error { return e.cause }

// FaultCategory implements Categorized so an already-classified error keeps
// its category if it is classified again.
func (e *EnhancedError) FaultCategory() Category { return e.Category }

// Classifier maps raw failures to EnhancedErrors.
type Classifier struct {
	critical map[domain.Dependency]bool
	newID    func() string
	now      func() time.Time
}

// Option customizes a Classifier.
type Option func(*Classifier)

// WithIDGenerator replaces the correlation id generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Classifier) { c.newID = fn }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// NewClassifier creates a classifier. critical lists the dependencies whose
// failures escalate severity.
func NewClassifier(critical []domain.Dependency, opts ...Option) *Classifier {
	c := &Classifier{
		critical: make(map[domain.Dependency]bool, len(critical)),
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
	for _, dep := range critical {
		c.critical[dep] = true
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsCritical reports whether dep was registered as critical.
func (c *Classifier) IsCritical(dep domain.Dependency) bool {
	return c.critical[dep]
}

// Classify converts err into an EnhancedError. It is total: nil and
// unrecognized errors yield CategoryUnknown.
func (c *Classifier) Classify(
	err error,
	dep domain.Dependency,
	ctx map[string]string,
) *EnhancedError {
	category, retryAfter := Categorize(err)

	technical := "unknown error"
	if err != nil {
		technical = err.Error()
	}

	correlationID := ctx[ContextCorrelationID]
	if correlationID == "" {
		correlationID = c.newID()
	}

	var copied map[string]string
	if len(ctx) > 0 {
		copied = make(map[string]string, len(ctx))
		for k, v := range ctx {
			copied[k] = v
		}
	}

	return &EnhancedError{
		Category:         category,
		Severity:         SeverityFor(category, c.critical[dep]),
		Dependency:       dep,
		UserMessage:      userMessage(category, dep),
		TechnicalMessage: technical,
		RecoveryActions:  RecoveryActions(category),
		CorrelationID:    correlationID,
		Retryable:        category.Retryable(),
		RetryAfter:       retryAfter,
		Context:          copied,
		OccurredAt:       c.now(),
		cause:            err,
	}
}

// Categorize returns the category of err and any retry-after hint it
// carries. Typed errors are inspected structurally; message text is only
// consulted when nothing structural matches.
func Categorize(err error) (Category, time.Duration) {
	if err == nil {
		return CategoryUnknown, 0
	}

	var enhanced *EnhancedError
	if errors.As(err, &enhanced) {
		return enhanced.Category, enhanced.RetryAfter
	}

	var fault *Fault
	if errors.As(err, &fault) && fault.Category != "" {
		return fault.Category, fault.RetryAfter
	}

	var tagged Categorized
	if errors.As(err, &tagged) {
		if category := tagged.FaultCategory(); category != "" {
			return category, 0
		}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if category, ok := categoryForStatus(statusErr.StatusCode); ok {
			return category, statusErr.RetryAfter
		}
	}

	if category, retryAfter, ok := categorizeGRPC(err); ok {
		return category, retryAfter
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout, 0
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout, 0
		}
		return CategoryNetwork, 0
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return CategoryNetwork, 0
	}

	return matchText(err.Error()), 0
}

func categorizeGRPC(err error) (Category, time.Duration, bool) {
	st, ok := status.FromError(err)
	if !ok || st == nil {
		return "", 0, false
	}

	var category Category
	switch st.Code() {
	case codes.Unavailable, codes.Internal, codes.Aborted:
		category = CategoryServiceUnavailable
	case codes.DeadlineExceeded:
		category = CategoryTimeout
	case codes.Unauthenticated:
		category = CategoryAuthentication
	case codes.PermissionDenied:
		category = CategoryPermission
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		category = CategoryValidation
	case codes.ResourceExhausted:
		category = CategoryRateLimit
	default:
		return "", 0, false
	}

	var retryAfter time.Duration
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.RetryInfo); ok && info.GetRetryDelay() != nil {
			retryAfter = info.GetRetryDelay().AsDuration()
		}
	}
	return category, retryAfter, true
}
