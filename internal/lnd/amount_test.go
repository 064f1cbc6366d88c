package lnd

import (
	"errors"
	"testing"

	"github.com/lightningmodel/lnchat/internal/config"
)

func TestCalculatePaymentAmount(t *testing.T) {
	rates := config.DefaultRates()
	tests := []struct {
		name  string
		plan  config.PlanKind
		limit int64
		want  int64
	}{
		{"100 requests", config.PlanRequest, 100, 50_000},
		{"1000 requests", config.PlanRequest, 1000, 500_000},
		{"100k tokens", config.PlanToken, 100_000, 1_000_000},
		{"10k tokens", config.PlanToken, 10_000, 100_000},
		{"one token", config.PlanToken, 1, 10},
		{"zero limit floors to 1 sat", config.PlanRequest, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculatePaymentAmount(tt.plan, tt.limit, rates)
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Fatalf("CalculatePaymentAmount(%s, %d) = %d, want %d", tt.plan, tt.limit, got, tt.want)
			}
		})
	}
}

func TestCalculatePaymentAmount_SubSatoshiFloorsToOne(t *testing.T) {
	rates := config.Rates{TokenBTC: 1e-12, RequestBTC: 1e-12}
	got, err := CalculatePaymentAmount(config.PlanToken, 1000, rates)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Fatalf("got %d sats, want 1", got)
	}
}

func TestCalculatePaymentAmount_Monotonic(t *testing.T) {
	rates := config.DefaultRates()
	for _, plan := range []config.PlanKind{config.PlanToken, config.PlanRequest} {
		prev := int64(0)
		for limit := int64(1); limit <= 5000; limit += 7 {
			got, err := CalculatePaymentAmount(plan, limit, rates)
			if err != nil {
				t.Fatal(err)
			}
			if got < 1 || got < prev {
				t.Fatalf("%s limit %d: %d sats after %d", plan, limit, got, prev)
			}
			prev = got
		}
	}
}

func TestCalculatePaymentAmount_InvalidPlan(t *testing.T) {
	_, err := CalculatePaymentAmount("subscription", 10, config.DefaultRates())
	if !errors.Is(err, ErrInvalidPlanKind) {
		t.Fatalf("err = %v, want ErrInvalidPlanKind", err)
	}
}
