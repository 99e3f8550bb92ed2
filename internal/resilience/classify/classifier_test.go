package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/vietddude/medlingo/internal/core/domain"
)

func TestCategorize_Text(t *testing.T) {
	tests := []struct {
		err    error
		expect Category
	}{
		{errors.New("429 Too Many Requests"), CategoryRateLimit},
		{errors.New("project rate limit exceeded"), CategoryRateLimit},
		{errors.New("request timed out after 30s"), CategoryTimeout},
		{errors.New("connection timeout"), CategoryTimeout},
		{errors.New("401 Unauthorized"), CategoryAuthentication},
		{errors.New("invalid token"), CategoryAuthentication},
		{errors.New("403 Forbidden"), CategoryPermission},
		{errors.New("Access denied for bucket"), CategoryPermission},
		{errors.New("503 Service Unavailable"), CategoryServiceUnavailable},
		{errors.New("upstream returned 502"), CategoryServiceUnavailable},
		{errors.New("dial tcp: connection refused"), CategoryNetwork},
		{errors.New("Failed to fetch"), CategoryNetwork},
		{errors.New("invalid language code"), CategoryValidation},
		{errors.New("400"), CategoryValidation},
		{errors.New("the quick brown fox"), CategoryUnknown},
		{errors.New(""), CategoryUnknown},
		{errors.New("payload of 1500 bytes"), CategoryUnknown},
	}

	for _, tt := range tests {
		got, _ := Categorize(tt.err)
		if got != tt.expect {
			t.Errorf("Categorize(%q) = %s, want %s", tt.err, got, tt.expect)
		}
	}
}

func TestCategorize_Typed(t *testing.T) {
	retryInfo, err := status.New(codes.ResourceExhausted, "quota").
		WithDetails(&errdetails.RetryInfo{RetryDelay: durationpb.New(7 * time.Second)})
	if err != nil {
		t.Fatalf("WithDetails: %v", err)
	}

	tests := []struct {
		name       string
		err        error
		expect     Category
		retryAfter time.Duration
	}{
		{"tagged fault", Tag(CategoryPermission, domain.DependencyIdentity, errors.New("boom")), CategoryPermission, 0},
		{"wrapped fault", fmt.Errorf("call: %w", Tag(CategoryTimeout, "", errors.New("x"))), CategoryTimeout, 0},
		{"status 401", &StatusError{StatusCode: 401}, CategoryAuthentication, 0},
		{"status 429", &StatusError{StatusCode: 429, RetryAfter: 3 * time.Second}, CategoryRateLimit, 3 * time.Second},
		{"status 504", &StatusError{StatusCode: 504}, CategoryTimeout, 0},
		{"status 404", &StatusError{StatusCode: 404}, CategoryValidation, 0},
		{"grpc unavailable", status.Error(codes.Unavailable, "backend down"), CategoryServiceUnavailable, 0},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "x"), CategoryAuthentication, 0},
		{"grpc retry info", retryInfo.Err(), CategoryRateLimit, 7 * time.Second},
		{"deadline", fmt.Errorf("probe: %w", context.DeadlineExceeded), CategoryTimeout, 0},
		{"net op", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, CategoryNetwork, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, retryAfter := Categorize(tt.err)
			if got != tt.expect {
				t.Errorf("category = %s, want %s", got, tt.expect)
			}
			if retryAfter != tt.retryAfter {
				t.Errorf("retryAfter = %v, want %v", retryAfter, tt.retryAfter)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier(nil)
	err := errors.New("503 service unavailable")

	first := c.Classify(err, domain.DependencyTranslation, nil)
	for i := 0; i < 20; i++ {
		next := c.Classify(err, domain.DependencyTranslation, nil)
		if next.Category != first.Category || next.Severity != first.Severity {
			t.Fatalf("classification changed between calls: %+v vs %+v", first, next)
		}
		if next.CorrelationID == first.CorrelationID {
			t.Fatalf("expected fresh correlation id per failure")
		}
	}
}

func TestClassify_NilIsUnknown(t *testing.T) {
	c := NewClassifier(nil)
	got := c.Classify(nil, domain.DependencyTranslation, nil)
	if got.Category != CategoryUnknown {
		t.Errorf("expected UNKNOWN, got %s", got.Category)
	}
	if got.Retryable {
		t.Error("UNKNOWN must not be retryable")
	}
}

func TestClassify_Severity(t *testing.T) {
	c := NewClassifier([]domain.Dependency{domain.DependencySpeechToTextPrimary, domain.DependencyChannel})

	tests := []struct {
		err    error
		dep    domain.Dependency
		expect Severity
	}{
		{errors.New("503"), domain.DependencySpeechToTextPrimary, SeverityHigh},
		{errors.New("connection refused"), domain.DependencyChannel, SeverityHigh},
		{errors.New("401"), domain.DependencySpeechToTextPrimary, SeverityCritical},
		{errors.New("403"), domain.DependencyChannel, SeverityCritical},
		{errors.New("503"), domain.DependencyTranslation, SeverityMedium},
		{errors.New("401"), domain.DependencyTranslation, SeverityHigh},
		{errors.New("bad request"), domain.DependencyTranslation, SeverityLow},
	}

	for _, tt := range tests {
		got := c.Classify(tt.err, tt.dep, nil)
		if got.Severity != tt.expect {
			t.Errorf("Classify(%q, %s).Severity = %s, want %s", tt.err, tt.dep, got.Severity, tt.expect)
		}
	}
}

func TestClassify_Fields(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewClassifier(nil,
		WithIDGenerator(func() string { return "corr-1" }),
		WithClock(func() time.Time { return fixed }),
	)

	raw := errors.New("dial tcp 10.0.0.1:443: connection refused")
	got := c.Classify(raw, domain.DependencyTranslation, map[string]string{"operation": "translate"})

	if got.CorrelationID != "corr-1" {
		t.Errorf("correlation id = %q", got.CorrelationID)
	}
	if !got.OccurredAt.Equal(fixed) {
		t.Errorf("occurredAt = %v", got.OccurredAt)
	}
	if got.TechnicalMessage != raw.Error() {
		t.Errorf("technical message = %q", got.TechnicalMessage)
	}
	if got.UserMessage == "" || got.UserMessage == got.TechnicalMessage {
		t.Errorf("user message must be set and differ from technical text: %q", got.UserMessage)
	}
	if len(got.RecoveryActions) == 0 {
		t.Error("expected recovery actions")
	}
	if !errors.Is(got, raw) {
		t.Error("expected EnhancedError to unwrap to raw error")
	}
	if got.Context["operation"] != "translate" {
		t.Errorf("context not retained: %v", got.Context)
	}
}

func TestClassify_ReusesContextCorrelationID(t *testing.T) {
	c := NewClassifier(nil)
	got := c.Classify(errors.New("timeout"), domain.DependencyTranslation,
		map[string]string{ContextCorrelationID: "op-42"})
	if got.CorrelationID != "op-42" {
		t.Errorf("expected op-42, got %s", got.CorrelationID)
	}
}

func TestClassify_ReclassifyKeepsCategory(t *testing.T) {
	c := NewClassifier(nil)
	first := c.Classify(errors.New("rate limit"), domain.DependencyTranslation, nil)
	again := c.Classify(fmt.Errorf("outer: %w", first), domain.DependencyTranslation, nil)
	if again.Category != CategoryRateLimit {
		t.Errorf("expected RATE_LIMIT, got %s", again.Category)
	}
}

func TestRecoveryActions_Copy(t *testing.T) {
	a := RecoveryActions(CategoryNetwork)
	a[0] = "mutated"
	if RecoveryActions(CategoryNetwork)[0] == "mutated" {
		t.Error("RecoveryActions must return a copy")
	}
}
