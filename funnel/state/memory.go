package state

import (
	"sync"
	"time"
)

// Store is the funnel state contract used by the flow and the grant dispatcher.
type Store interface {
	Get(userID int64) (FunnelState, bool)
	Set(userID int64, st FunnelState) error
	Ensure(userID int64) FunnelState
	Update(userID int64, fn func(st *FunnelState) error) (FunnelState, error)
	CompareAndAdvance(userID int64, from, to Step, mutate func(st *FunnelState)) (FunnelState, bool)
	MarkPaid(userID int64, paymentID string) (FunnelState, bool)
}

// Memory is a mutex-protected in-memory Store. Records live for the process lifetime.
type Memory struct {
	mu     sync.RWMutex
	states map[int64]FunnelState
	now    func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory constructs an empty store.
func NewMemory() *Memory {
	return &Memory{states: make(map[int64]FunnelState), now: time.Now}
}

// Get returns a copy of the user's record.
func (m *Memory) Get(userID int64) (FunnelState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[userID]
	return st, ok
}

// Set replaces the record after checking the transition against the current one.
func (m *Memory) Set(userID int64, st FunnelState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.states[userID]
	if !ok {
		prev = FunnelState{UserID: userID, Step: StepStart}
	}
	st.UserID = userID
	if err := check(prev, st); err != nil {
		return err
	}
	st.UpdatedAt = m.now()
	m.states[userID] = st
	return nil
}

// Ensure creates the record at StepStart if the user has none and returns it.
func (m *Memory) Ensure(userID int64) FunnelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[userID]; ok {
		return st
	}
	st := FunnelState{UserID: userID, Step: StepStart, UpdatedAt: m.now()}
	m.states[userID] = st
	return st
}

// Update applies fn to the record atomically. A missing record returns ErrNotFound.
// The record is left untouched when fn fails or breaks the transition rules.
func (m *Memory) Update(userID int64, fn func(st *FunnelState) error) (FunnelState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.states[userID]
	if !ok {
		return FunnelState{}, ErrNotFound
	}
	next := prev
	if err := fn(&next); err != nil {
		return prev, err
	}
	next.UserID = userID
	if err := check(prev, next); err != nil {
		return prev, err
	}
	next.UpdatedAt = m.now()
	m.states[userID] = next
	return next, nil
}

// CompareAndAdvance moves the user from one step to another only when the current
// step equals from. An empty from accepts any step that may advance to to.
// mutate runs on the new record before it is stored.
func (m *Memory) CompareAndAdvance(userID int64, from, to Step, mutate func(st *FunnelState)) (FunnelState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.states[userID]
	if !ok {
		prev = FunnelState{UserID: userID, Step: StepStart}
	}
	if from != "" && prev.Step != from {
		return prev, false
	}
	next := prev
	next.Step = to
	if mutate != nil {
		mutate(&next)
	}
	next.UserID = userID
	if check(prev, next) != nil {
		return prev, false
	}
	next.UpdatedAt = m.now()
	m.states[userID] = next
	return next, true
}

// MarkPaid moves the user to StepPaid. The bool is true only for the call that
// flipped Paid from false to true.
func (m *Memory) MarkPaid(userID int64, paymentID string) (FunnelState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[userID]
	if !ok {
		st = FunnelState{UserID: userID, Step: StepStart}
	}
	first := !st.Paid
	st.Paid = true
	st.Step = StepPaid
	if paymentID != "" {
		st.PaymentID = paymentID
	}
	st.UpdatedAt = m.now()
	m.states[userID] = st
	return st, first
}

// Len returns the number of tracked users.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
