// Package state keeps one funnel record per user and enforces its transition rules.
package state

import (
	"errors"
	"fmt"
	"time"
)

// Step is the user's position in the funnel.
type Step string

const (
	StepStart               Step = "start"
	StepAwaitingFreeEmail   Step = "awaiting_free_email"
	StepFreeAccessRequested Step = "free_access_requested"
	StepAwaitingPaidEmail   Step = "awaiting_paid_email"
	StepAwaitingPayment     Step = "awaiting_payment"
	StepPaid                Step = "paid"
)

var ranks = map[Step]int{
	StepStart:               0,
	StepAwaitingFreeEmail:   1,
	StepFreeAccessRequested: 2,
	StepAwaitingPaidEmail:   3,
	StepAwaitingPayment:     4,
	StepPaid:                5,
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	_, ok := ranks[s]
	return ok
}

// Rank orders the steps; transitions never lower it.
func (s Step) Rank() int {
	if r, ok := ranks[s]; ok {
		return r
	}
	return -1
}

// ExpectsText reports whether free text is meaningful in this step.
func (s Step) ExpectsText() bool {
	return s == StepAwaitingFreeEmail || s == StepAwaitingPaidEmail
}

// CanAdvanceTo reports whether moving from s to next keeps the order.
func (s Step) CanAdvanceTo(next Step) bool {
	return next.Valid() && next.Rank() >= s.Rank()
}

var (
	// ErrRegression is returned when a write would move a step backwards.
	ErrRegression = errors.New("funnel step cannot move backwards")
	// ErrUnpaid is returned when a write would clear the paid flag.
	ErrUnpaid = errors.New("paid flag cannot be cleared")
	// ErrUnknownStep is returned for steps outside the funnel.
	ErrUnknownStep = errors.New("unknown funnel step")
	// ErrNotFound is returned when the user has no record.
	ErrNotFound = errors.New("funnel state not found")
)

// FunnelState is the per-user record.
type FunnelState struct {
	UserID     int64
	Step       Step
	Email      string
	PaymentID  string
	PaymentURL string
	Paid       bool
	UpdatedAt  time.Time
}

// check validates next as a successor of prev.
func check(prev, next FunnelState) error {
	if !next.Step.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStep, next.Step)
	}
	if !prev.Step.CanAdvanceTo(next.Step) {
		return fmt.Errorf("%w: %s -> %s", ErrRegression, prev.Step, next.Step)
	}
	if prev.Paid && !next.Paid {
		return ErrUnpaid
	}
	return nil
}
