package chat

import (
	"errors"
	"testing"
	"time"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from    Phase
		ev      event
		want    Phase
		wantErr bool
	}{
		{PhaseNoPlan, evSelectPlan, PhasePlanSelected, false},
		{PhasePlanSelected, evBeginPayment, PhaseAwaitingPayment, false},
		{PhaseAwaitingPayment, evSelectPlan, PhasePlanSelected, false},
		{PhaseAwaitingPayment, evConfigured, PhaseActive, false},
		{PhasePlanSelected, evConfigured, PhaseActive, false},
		{PhaseNoPlan, evRestored, PhaseActive, false},
		{PhaseActive, evExhausted, PhaseExhausted, false},
		{PhaseActive, evTerminated, PhaseTerminated, false},
		{PhaseExhausted, evTerminated, PhaseTerminated, false},

		{PhaseNoPlan, evBeginPayment, PhaseNoPlan, true},
		{PhaseNoPlan, evConfigured, PhaseNoPlan, true},
		{PhaseActive, evSelectPlan, PhaseActive, true},
		{PhaseActive, evRestored, PhaseActive, true},
		{PhaseTerminated, evExhausted, PhaseTerminated, true},
		{PhaseNoPlan, evTerminated, PhaseNoPlan, true},
	}
	for _, tt := range tests {
		got, err := transition(tt.from, tt.ev)
		if (err != nil) != tt.wantErr {
			t.Fatalf("transition(%s, %s) err = %v, wantErr %v", tt.from, tt.ev, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("transition(%s, %s) err = %v, want ErrInvalidTransition", tt.from, tt.ev, err)
		}
		if got != tt.want {
			t.Fatalf("transition(%s, %s) = %s, want %s", tt.from, tt.ev, got, tt.want)
		}
	}
}

func TestResetFromEveryPhase(t *testing.T) {
	for p := PhaseNoPlan; p <= PhaseTerminated; p++ {
		got, err := transition(p, evReset)
		if err != nil || got != PhaseNoPlan {
			t.Fatalf("reset from %s = %s, %v", p, got, err)
		}
	}
}

func TestRateLimitCountdown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := newRateLimit("slow down", now)
	if got := rl.Remaining(now.Add(15 * time.Second)); got != 45*time.Second {
		t.Fatalf("Remaining = %v, want 45s", got)
	}
	if got := rl.Remaining(now.Add(2 * time.Minute)); got != 0 {
		t.Fatalf("Remaining after expiry = %v, want 0", got)
	}
	if (RateLimit{}).Expired(now) {
		t.Fatal("zero signal reports expired")
	}
}

func TestEstimateTokens(t *testing.T) {
	for in, want := range map[string]int{
		"":      0,
		"a":     1,
		"abcd":  1,
		"abcde": 2,
		"héllo": 2,
	} {
		if got := EstimateTokens(in); got != want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", in, got, want)
		}
	}
}
