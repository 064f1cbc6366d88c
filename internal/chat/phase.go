package chat

import (
	"errors"
	"fmt"
)

// Phase is where the user is in the purchase-then-chat flow.
type Phase int

const (
	PhaseNoPlan Phase = iota
	PhasePlanSelected
	PhaseAwaitingPayment
	PhaseActive
	PhaseExhausted
	PhaseTerminated
)

var phaseNames = [...]string{
	PhaseNoPlan:          "no plan",
	PhasePlanSelected:    "plan selected",
	PhaseAwaitingPayment: "awaiting payment",
	PhaseActive:          "active",
	PhaseExhausted:       "exhausted",
	PhaseTerminated:      "terminated",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Terminal reports whether no more messages may be sent in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseExhausted || p == PhaseTerminated
}

type event int

const (
	evSelectPlan event = iota
	evBeginPayment
	evConfigured
	evRestored
	evExhausted
	evTerminated
	evReset
)

var eventNames = [...]string{
	evSelectPlan:   "select plan",
	evBeginPayment: "begin payment",
	evConfigured:   "configure limit",
	evRestored:     "restore",
	evExhausted:    "exhaust",
	evTerminated:   "terminate",
	evReset:        "reset",
}

func (e event) String() string { return eventNames[e] }

// ErrInvalidTransition is returned for an operation the current phase does not allow.
var ErrInvalidTransition = errors.New("chat: invalid transition")

// transition is the only place phases change.
func transition(from Phase, ev event) (Phase, error) {
	switch ev {
	case evReset:
		return PhaseNoPlan, nil
	case evSelectPlan:
		switch from {
		case PhaseNoPlan, PhasePlanSelected, PhaseAwaitingPayment:
			return PhasePlanSelected, nil
		}
	case evBeginPayment:
		switch from {
		case PhasePlanSelected, PhaseAwaitingPayment:
			return PhaseAwaitingPayment, nil
		}
	case evConfigured:
		switch from {
		case PhasePlanSelected, PhaseAwaitingPayment:
			return PhaseActive, nil
		}
	case evRestored:
		if from == PhaseNoPlan {
			return PhaseActive, nil
		}
	case evExhausted:
		if from == PhaseActive {
			return PhaseExhausted, nil
		}
	case evTerminated:
		switch from {
		case PhaseActive, PhaseExhausted:
			return PhaseTerminated, nil
		}
	}
	return from, fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, ev, from)
}
