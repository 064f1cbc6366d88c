package config

import "fmt"

// PlanKind is how a session is metered.
type PlanKind string

// Plan kinds accepted by the session API.
const (
	PlanToken   PlanKind = "token"
	PlanRequest PlanKind = "request"
)

// Valid reports whether k is a known plan kind.
func (k PlanKind) Valid() bool {
	return k == PlanToken || k == PlanRequest
}

// Unit is the metered unit name, plural.
func (k PlanKind) Unit() string {
	if k == PlanToken {
		return "tokens"
	}
	return "requests"
}

// ParsePlanKind accepts "token"/"tokens"/"request"/"requests".
func ParsePlanKind(s string) (PlanKind, error) {
	switch s {
	case "token", "tokens":
		return PlanToken, nil
	case "request", "requests":
		return PlanRequest, nil
	}
	return "", fmt.Errorf("unknown plan %q (want token or request)", s)
}

// Per-unit rates in BTC.
const (
	DefaultTokenRateBTC   = 0.0000001
	DefaultRequestRateBTC = 0.000005
)

// DefaultModel is the only model the service offers today.
const DefaultModel = "Gemini 1.5 Flash"

// Default limits shown preselected in the limit forms.
const (
	DefaultRequestLimit int64 = 100
	DefaultTokenLimit   int64 = 100_000
)

// Preset limits offered by the limit forms.
var (
	RequestLimitPresets = []int64{50, 100, 500, 1000}
	TokenLimitPresets   = []int64{10_000, 50_000, 100_000, 500_000}
)

// Rates holds the effective per-unit prices in BTC.
type Rates struct {
	TokenBTC   float64
	RequestBTC float64
}

// DefaultRates returns the built-in price list.
func DefaultRates() Rates {
	return Rates{TokenBTC: DefaultTokenRateBTC, RequestBTC: DefaultRequestRateBTC}
}

// EffectiveRates applies pricing overrides from the config file.
func (c Config) EffectiveRates() Rates {
	r := DefaultRates()
	if v := c.Pricing.TokenRateBTC; v != nil && *v > 0 {
		r.TokenBTC = *v
	}
	if v := c.Pricing.RequestRateBTC; v != nil && *v > 0 {
		r.RequestBTC = *v
	}
	return r
}

// Plan describes a purchasable plan for display.
type Plan struct {
	Kind     PlanKind
	Name     string
	Unit     string
	Features []string
}

// Plans is the catalogue shown on the plan picker.
var Plans = []Plan{
	{
		Kind: PlanToken,
		Name: "Pay Per Token",
		Unit: "per token",
		Features: []string{
			"Pay only for what you use",
			"No monthly commitments",
			"Token usage tracking",
			"Volume discounts available",
		},
	},
	{
		Kind: PlanRequest,
		Name: "Pay Per Request",
		Unit: "per request",
		Features: []string{
			"Simple pricing model",
			"Unlimited tokens per request",
			"API calls tracking",
			"Bulk pricing available",
		},
	},
}

// PlanFor returns the catalogue entry for kind.
func PlanFor(kind PlanKind) (Plan, bool) {
	for _, p := range Plans {
		if p.Kind == kind {
			return p, true
		}
	}
	return Plan{}, false
}

// Rate returns the per-unit BTC price for kind.
func (r Rates) Rate(kind PlanKind) float64 {
	if kind == PlanToken {
		return r.TokenBTC
	}
	return r.RequestBTC
}

// Presets returns the preset limits for kind.
func Presets(kind PlanKind) []int64 {
	if kind == PlanToken {
		return TokenLimitPresets
	}
	return RequestLimitPresets
}

// DefaultLimit returns the configured default limit for kind.
func (c Config) DefaultLimit(kind PlanKind) int64 {
	if kind == PlanToken {
		if c.General.TokenLimit > 0 {
			return c.General.TokenLimit
		}
		return DefaultTokenLimit
	}
	if c.General.RequestLimit > 0 {
		return c.General.RequestLimit
	}
	return DefaultRequestLimit
}
