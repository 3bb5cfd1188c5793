// Package access tracks manual access requests and the operator grant dialogue.
package access

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Flow tells which intake produced a request.
type Flow string

const (
	FlowFree Flow = "free"
	FlowPaid Flow = "paid"
)

var (
	ErrNotFound      = errors.New("access request not found")
	ErrAlreadyIssued = errors.New("access already issued")
)

// Request is a manual grant waiting for an operator.
type Request struct {
	ID        string
	UserID    int64
	Email     string
	Flow      Flow
	PaymentID string
	Issued    bool
	CreatedAt time.Time
}

// Store keeps access requests in memory.
type Store struct {
	mu    sync.Mutex
	items map[string]Request
	newID func() string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string]Request), newID: uuid.NewString}
}

// Open creates a new request.
func (s *Store) Open(userID int64, email string, flow Flow, paymentID string) Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Request{
		ID:        s.newID(),
		UserID:    userID,
		Email:     email,
		Flow:      flow,
		PaymentID: paymentID,
		CreatedAt: time.Now(),
	}
	s.items[r.ID] = r
	return r
}

// Get returns a copy of the request.
func (s *Store) Get(id string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	return r, ok
}

// Check returns the request if it can still be issued.
func (s *Store) Check(id string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked(id)
}

func (s *Store) checkLocked(id string) (Request, error) {
	r, ok := s.items[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	if r.Issued {
		return r, ErrAlreadyIssued
	}
	return r, nil
}

// MarkIssued claims the request. Only one caller succeeds.
func (s *Store) MarkIssued(id string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.checkLocked(id)
	if err != nil {
		return r, err
	}
	r.Issued = true
	s.items[id] = r
	return r, nil
}

// Release undoes MarkIssued after a failed delivery.
func (s *Store) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.items[id]; ok {
		r.Issued = false
		s.items[id] = r
	}
}
