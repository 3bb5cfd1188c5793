package state

import (
	"errors"
	"sync"
	"testing"
)

func TestStepOrdering(t *testing.T) {
	cases := []struct {
		from, to Step
		ok       bool
	}{
		{StepStart, StepAwaitingFreeEmail, true},
		{StepAwaitingFreeEmail, StepFreeAccessRequested, true},
		{StepFreeAccessRequested, StepAwaitingPaidEmail, true},
		{StepAwaitingPaidEmail, StepAwaitingPayment, true},
		{StepAwaitingPayment, StepPaid, true},
		{StepAwaitingPayment, StepAwaitingPaidEmail, false},
		{StepPaid, StepStart, false},
		{StepStart, StepStart, true},
		{StepStart, Step("bogus"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
	if StepStart.ExpectsText() || !StepAwaitingPaidEmail.ExpectsText() {
		t.Fatal("ExpectsText mismatch")
	}
}

func TestSetRejectsRegression(t *testing.T) {
	m := NewMemory()
	if err := m.Set(1, FunnelState{Step: StepAwaitingPayment, PaymentID: "p"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	err := m.Set(1, FunnelState{Step: StepStart})
	if !errors.Is(err, ErrRegression) {
		t.Fatalf("expected ErrRegression, got %v", err)
	}
	st, _ := m.Get(1)
	if st.Step != StepAwaitingPayment || st.PaymentID != "p" {
		t.Fatalf("state changed after rejected set: %+v", st)
	}
}

func TestUpdateKeepsPaid(t *testing.T) {
	m := NewMemory()
	m.MarkPaid(1, "pay_1")
	_, err := m.Update(1, func(st *FunnelState) error {
		st.Paid = false
		return nil
	})
	if !errors.Is(err, ErrUnpaid) {
		t.Fatalf("expected ErrUnpaid, got %v", err)
	}
	if _, err := m.Update(2, func(*FunnelState) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompareAndAdvance(t *testing.T) {
	m := NewMemory()
	m.Ensure(1)
	if _, ok := m.CompareAndAdvance(1, StepAwaitingFreeEmail, StepFreeAccessRequested, nil); ok {
		t.Fatal("advance must fail when the current step differs")
	}
	if _, ok := m.CompareAndAdvance(1, StepStart, StepAwaitingFreeEmail, nil); !ok {
		t.Fatal("expected advance from start")
	}
	st, ok := m.CompareAndAdvance(1, StepAwaitingFreeEmail, StepFreeAccessRequested, func(st *FunnelState) {
		st.Email = "user@example.com"
	})
	if !ok || st.Email != "user@example.com" {
		t.Fatalf("advance with mutate = %+v, %v", st, ok)
	}
	if _, ok := m.CompareAndAdvance(1, "", StepAwaitingFreeEmail, nil); ok {
		t.Fatal("wildcard advance must still refuse regressions")
	}
}

func TestMarkPaidFlipsOnce(t *testing.T) {
	m := NewMemory()
	m.Ensure(7)
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, first := m.MarkPaid(7, "pay"); first {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if firsts != 1 {
		t.Fatalf("paid flipped %d times", firsts)
	}
	st, _ := m.Get(7)
	if !st.Paid || st.Step != StepPaid || st.PaymentID != "pay" {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestEnsureDoesNotReset(t *testing.T) {
	m := NewMemory()
	m.MarkPaid(3, "")
	if st := m.Ensure(3); st.Step != StepPaid {
		t.Fatalf("ensure reset the step: %+v", st)
	}
	if m.Len() != 1 {
		t.Fatalf("len = %d", m.Len())
	}
}
