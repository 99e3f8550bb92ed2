package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/medlingo/internal/core/domain"
	"github.com/vietddude/medlingo/internal/metrics"
	"github.com/vietddude/medlingo/internal/resilience/breaker"
	"github.com/vietddude/medlingo/internal/resilience/classify"
)

// Operation is a call to a dependency.
type Operation func(ctx context.Context) error

// FallbackOperation serves a request from target instead of the failed
// dependency. target is empty when no fallback dependency is configured.
type FallbackOperation func(ctx context.Context, target domain.Dependency) error

// Executor runs operations through the breaker, classifier and recovery
// manager, retrying and falling back as decided.
type Executor struct {
	breakers   *breaker.Registry
	classifier *classify.Classifier
	recovery   *Manager
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewExecutor wires an executor. breakers may be nil.
func NewExecutor(breakers *breaker.Registry, classifier *classify.Classifier, recovery *Manager) *Executor {
	return &Executor{
		breakers:   breakers,
		classifier: classifier,
		recovery:   recovery,
		logger:     slog.Default().With("component", "executor"),
		sleep:      sleepCtx,
	}
}

// Run executes op against dep. It returns nil on success (including a
// successful fallback), a *DegradedError when the caller should continue
// with reduced features, or the *classify.EnhancedError that ended recovery.
func (x *Executor) Run(ctx context.Context, dep domain.Dependency, op Operation, fallback FallbackOperation) error {
	correlationID := uuid.New().String()
	tags := map[string]string{classify.ContextCorrelationID: correlationID}

	// Rounds are capped at the retry bound even when no breaker throttles
	// the dependency.
	for round := 0; ; round++ {
		err := x.call(ctx, dep, op)
		if err == nil {
			x.recovery.Complete(correlationID)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			x.recovery.Complete(correlationID)
			return ctxErr
		}

		enhanced := x.classifier.Classify(err, dep, tags)
		metrics.ErrorsClassified.WithLabelValues(
			string(dep), string(enhanced.Category), enhanced.Severity.String(),
		).Inc()

		decision := x.recovery.AttemptRecovery(ctx, enhanced)
		if decision.Success &&
			(decision.Strategy == StrategyRetry || decision.NextAction == StrategyRetry) {
			if round >= x.recovery.MaxRetries() {
				x.recovery.Complete(correlationID)
				return x.exhausted(ctx, enhanced, fallback)
			}
			x.logger.Warn("Retrying dependency call",
				"dependency", dep,
				"category", enhanced.Category,
				"correlation_id", correlationID,
				"delay", decision.RetryAfter,
			)
			if err := x.sleep(ctx, decision.RetryAfter); err != nil {
				x.recovery.Complete(correlationID)
				return err
			}
			continue
		}

		return x.settle(ctx, enhanced, decision, fallback)
	}
}

// settle resolves a decision that does not retry the primary dependency.
func (x *Executor) settle(
	ctx context.Context,
	enhanced *classify.EnhancedError,
	decision Decision,
	fallback FallbackOperation,
) error {
	switch {
	case decision.Strategy == StrategyFallback && decision.Success:
		return x.runFallback(ctx, enhanced, decision, fallback)
	case decision.NextAction == StrategyFallback:
		return x.runFallback(ctx, enhanced, decision, fallback)
	case decision.Strategy == StrategyGracefulDegradation,
		decision.NextAction == StrategyGracefulDegradation:
		return &DegradedError{Decision: x.degraded(enhanced.Dependency), Err: enhanced}
	default:
		return enhanced
	}
}

func (x *Executor) exhausted(ctx context.Context, enhanced *classify.EnhancedError, fallback FallbackOperation) error {
	return x.runFallback(ctx, enhanced, Decision{
		Strategy:   StrategyRetry,
		NextAction: StrategyFallback,
	}, fallback)
}

func (x *Executor) runFallback(
	ctx context.Context,
	enhanced *classify.EnhancedError,
	decision Decision,
	fallback FallbackOperation,
) error {
	if fallback == nil {
		return &DegradedError{Decision: x.degraded(enhanced.Dependency), Err: enhanced}
	}

	target := decision.Fallback
	x.logger.Info("Using fallback",
		"dependency", enhanced.Dependency,
		"fallback", target,
		"correlation_id", enhanced.CorrelationID,
	)
	err := x.call(ctx, target, func(ctx context.Context) error {
		return fallback(ctx, target)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	x.logger.Warn("Fallback failed",
		"dependency", enhanced.Dependency,
		"fallback", target,
		"error", err,
	)
	return &DegradedError{Decision: x.degraded(enhanced.Dependency), Err: enhanced}
}

func (x *Executor) degraded(dep domain.Dependency) Decision {
	return Decision{
		Strategy: StrategyGracefulDegradation,
		Success:  true,
		Message:  x.recovery.DegradationMessage(dep),
	}
}

// call runs op through dep's breaker when one is registered.
func (x *Executor) call(ctx context.Context, dep domain.Dependency, op Operation) error {
	if x.breakers != nil {
		if b, ok := x.breakers.Get(dep); ok {
			return b.Execute(ctx, op)
		}
	}
	return op(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
