// Package recovery turns classified failures into recovery decisions.
package recovery

import (
	"fmt"
	"time"

	"github.com/vietddude/medlingo/internal/core/domain"
	"github.com/vietddude/medlingo/internal/resilience/classify"
)

// Strategy is the recovery approach chosen for a failure.
type Strategy string

const (
	StrategyRetry               Strategy = "RETRY"
	StrategyFallback            Strategy = "FALLBACK"
	StrategyCircuitBreaker      Strategy = "CIRCUIT_BREAKER"
	StrategyGracefulDegradation Strategy = "GRACEFUL_DEGRADATION"
	StrategyManualIntervention  Strategy = "MANUAL_INTERVENTION"
)

// Decision is the outcome of a recovery attempt. RetryAfter is only set
// when the caller should wait before trying again.
type Decision struct {
	Strategy   Strategy          `json:"strategy"`
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	NextAction Strategy          `json:"nextAction,omitempty"`
	RetryAfter time.Duration     `json:"retryAfter,omitempty"`
	Fallback   domain.Dependency `json:"fallback,omitempty"`
}

// StrategyFor maps a category to its base strategy.
func StrategyFor(category classify.Category) Strategy {
	switch category {
	case classify.CategoryAuthentication, classify.CategoryPermission, classify.CategoryValidation:
		return StrategyManualIntervention
	case classify.CategoryNetwork, classify.CategoryTimeout:
		return StrategyRetry
	case classify.CategoryRateLimit:
		return StrategyCircuitBreaker
	case classify.CategoryServiceUnavailable:
		return StrategyFallback
	default:
		return StrategyGracefulDegradation
	}
}

var defaultDegradationMessages = map[domain.Dependency]string{
	domain.DependencySpeechToTextPrimary:  "Live transcription is paused. You can keep typing your messages.",
	domain.DependencySpeechToTextFallback: "Live transcription is paused. You can keep typing your messages.",
	domain.DependencyTranslation:          "Translations are delayed. The original text is shown for now.",
	domain.DependencySpeechSynthesis:      "Voice playback is unavailable. Translations are shown as text.",
	domain.DependencyAIEnhancement:        "Showing standard translations without enhancements.",
	domain.DependencySessionStore:         "Your session will be saved once the service is back.",
	domain.DependencyObjectStore:          "File uploads are paused. Your conversation continues normally.",
	domain.DependencyIdentity:             "You can continue this session. Signing in again may be needed later.",
	domain.DependencyChannel:              "The live connection is limited. Messages are sent once it recovers.",
	domain.DependencyCache:                "Some features may respond more slowly for a while.",
}

const genericDegradationMessage = "Some features are temporarily limited."

// DegradedError reports that an operation ended in graceful degradation.
// Callers should show Decision.Message and continue with reduced features.
type DegradedError struct {
	Decision Decision
	Err      *classify.EnhancedError
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("degraded: %s", e.Decision.Message)
}

func (e *DegradedError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}
