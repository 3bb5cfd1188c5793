package payment

import "sync"

// Ledger remembers who initiated each payment and which payment an order id refers to.
type Ledger struct {
	mu        sync.RWMutex
	byPayment map[string]int64
	byOrder   map[string]string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		byPayment: make(map[string]int64),
		byOrder:   make(map[string]string),
	}
}

// Record stores both mappings for a freshly created payment.
func (l *Ledger) Record(paymentID, orderID string, userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byPayment[paymentID] = userID
	if orderID != "" {
		l.byOrder[orderID] = paymentID
	}
}

// UserFor returns the user that created paymentID.
func (l *Ledger) UserFor(paymentID string) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.byPayment[paymentID]
	return id, ok
}

// PaymentForOrder resolves a return-redirect order id.
func (l *Ledger) PaymentForOrder(orderID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.byOrder[orderID]
	return id, ok
}

// Settle drops the owner mapping of a fulfilled payment. The order mapping stays
// so a late return redirect still renders the success page.
func (l *Ledger) Settle(paymentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byPayment, paymentID)
}

// Pending returns the number of unsettled payments.
func (l *Ledger) Pending() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byPayment)
}
