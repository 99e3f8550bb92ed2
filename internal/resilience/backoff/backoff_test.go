package backoff

import (
	"testing"
	"time"
)

func TestDelay_Sequence(t *testing.T) {
	cfg := Config{
		InitialInterval: 1000 * time.Millisecond,
		Multiplier:      1.5,
		MaxInterval:     30000 * time.Millisecond,
	}

	want := []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5062500 * time.Microsecond,
		7593750 * time.Microsecond,
	}

	for attempt, expect := range want {
		if got := cfg.Delay(attempt); got != expect {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, expect)
		}
	}
}

func TestDelay_Capped(t *testing.T) {
	cfg := Config{
		InitialInterval: time.Second,
		Multiplier:      1.5,
		MaxInterval:     30 * time.Second,
	}

	for attempt := 9; attempt < 40; attempt++ {
		if got := cfg.Delay(attempt); got != 30*time.Second {
			t.Fatalf("Delay(%d) = %v, want cap 30s", attempt, got)
		}
	}
}

func TestDelay_NegativeAttempt(t *testing.T) {
	if got := Default.Delay(-3); got != Default.InitialInterval {
		t.Errorf("expected initial interval for negative attempt, got %v", got)
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{Multiplier: 2}.WithDefaults()
	if cfg.InitialInterval != Default.InitialInterval || cfg.MaxInterval != Default.MaxInterval {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Multiplier != 2 {
		t.Errorf("explicit multiplier overwritten: %v", cfg.Multiplier)
	}
}
