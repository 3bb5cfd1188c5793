package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m3rciful/funnelbot/funnel"
	"github.com/m3rciful/funnelbot/funnel/payment"
)

type countingGranter struct {
	mu    sync.Mutex
	calls []int64
	delay time.Duration
	err   error
}

func (g *countingGranter) Grant(_ context.Context, userID int64, _ string) error {
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, userID)
	return g.err
}

func (g *countingGranter) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func TestDuplicateConfirmationGrantsOnce(t *testing.T) {
	ledger := payment.NewLedger()
	ledger.Record("pay_1", "ord_1", 42)
	g := &countingGranter{}
	r := New(ledger, g)

	out, err := r.Reconcile(context.Background(), "pay_1", 0)
	if err != nil || out != Granted {
		t.Fatalf("first = %s, %v", out, err)
	}
	out, err = r.Reconcile(context.Background(), "pay_1", 0)
	if err != nil || out != AlreadyProcessed {
		t.Fatalf("second = %s, %v", out, err)
	}
	if g.count() != 1 || g.calls[0] != 42 {
		t.Fatalf("grant calls = %v", g.calls)
	}
	if _, ok := ledger.UserFor("pay_1"); ok {
		t.Fatal("ledger entry must be settled")
	}
}

func TestConcurrentConfirmationsGrantOnce(t *testing.T) {
	ledger := payment.NewLedger()
	ledger.Record("pay_1", "ord_1", 42)
	g := &countingGranter{delay: 20 * time.Millisecond}
	r := New(ledger, g)

	var granted, duplicates atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Reconcile(context.Background(), "pay_1", 42)
			if err != nil {
				t.Errorf("reconcile: %v", err)
			}
			switch out {
			case Granted:
				granted.Add(1)
			case AlreadyProcessed:
				duplicates.Add(1)
			}
		}()
	}
	wg.Wait()
	if granted.Load() != 1 || duplicates.Load() != 15 || g.count() != 1 {
		t.Fatalf("granted=%d duplicates=%d calls=%d", granted.Load(), duplicates.Load(), g.count())
	}
}

func TestUnresolvedMutatesNothing(t *testing.T) {
	g := &countingGranter{}
	r := New(payment.NewLedger(), g)

	out, err := r.Reconcile(context.Background(), "pay_unknown", 0)
	var ue *funnel.UnresolvedPaymentError
	if out != Unresolved || !errors.As(err, &ue) || ue.PaymentID != "pay_unknown" {
		t.Fatalf("got %s, %v", out, err)
	}
	if r.Processed("pay_unknown") || g.count() != 0 {
		t.Fatal("unresolved payment must not be marked or granted")
	}
}

func TestMetadataHintFallback(t *testing.T) {
	ledger := payment.NewLedger()
	ledger.Record("pay_2", "", 7)
	g := &countingGranter{}
	r := New(ledger, g)

	if out, _ := r.Reconcile(context.Background(), "pay_1", 9); out != Granted || g.calls[0] != 9 {
		t.Fatalf("hint not used: %s %v", out, g.calls)
	}
	if out, _ := r.Reconcile(context.Background(), "pay_2", 9); out != Granted || g.calls[1] != 7 {
		t.Fatalf("ledger must win over hint: %s %v", out, g.calls)
	}
}

func TestGrantErrorStillProcessed(t *testing.T) {
	ledger := payment.NewLedger()
	ledger.Record("pay_1", "", 1)
	g := &countingGranter{err: &funnel.NotificationDeliveryError{RecipientID: 100, Role: funnel.RoleOperator, Err: errors.New("x")}}
	r := New(ledger, g)

	out, err := r.Reconcile(context.Background(), "pay_1", 0)
	if out != Granted || err == nil {
		t.Fatalf("got %s, %v", out, err)
	}
	if out, _ := r.Reconcile(context.Background(), "pay_1", 0); out != AlreadyProcessed {
		t.Fatalf("retry after partial delivery = %s", out)
	}
}

func TestOverrideBlocksLaterWebhook(t *testing.T) {
	ledger := payment.NewLedger()
	ledger.Record("pay_1", "", 5)
	g := &countingGranter{}
	r := New(ledger, g)

	if err := r.Override(context.Background(), 5, "pay_1"); err != nil {
		t.Fatalf("override: %v", err)
	}
	if out, _ := r.Reconcile(context.Background(), "pay_1", 0); out != AlreadyProcessed {
		t.Fatalf("webhook after override = %s", out)
	}
	if err := r.Override(context.Background(), 5, ""); err != nil {
		t.Fatalf("second override: %v", err)
	}
	if g.count() != 2 {
		t.Fatalf("override must always dispatch, calls = %d", g.count())
	}
}

func TestEmptyPaymentID(t *testing.T) {
	r := New(payment.NewLedger(), &countingGranter{})
	_, err := r.Reconcile(context.Background(), "", 1)
	var ve *funnel.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
