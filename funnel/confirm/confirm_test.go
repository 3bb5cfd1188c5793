package confirm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/funnelbot/funnel"
	"github.com/m3rciful/funnelbot/funnel/access"
	"github.com/m3rciful/funnelbot/funnel/chat/chattest"
	"github.com/m3rciful/funnelbot/funnel/grant"
	"github.com/m3rciful/funnelbot/funnel/payment"
	"github.com/m3rciful/funnelbot/funnel/reconcile"
	"github.com/m3rciful/funnelbot/funnel/state"
)

type recordingGranter struct {
	mu    sync.Mutex
	users []int64
}

func (g *recordingGranter) Grant(_ context.Context, userID int64, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users = append(g.users, userID)
	return nil
}

func (g *recordingGranter) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.users)
}

type statusStub struct {
	statuses map[string]payment.Status
	err      error
	calls    int
}

func (s *statusStub) PaymentStatus(_ context.Context, id string) (payment.Status, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.statuses[id], nil
}

func setup() (*payment.Ledger, *recordingGranter, *reconcile.Reconciler) {
	ledger := payment.NewLedger()
	ledger.Record("pay_1", "ord_1", 42)
	g := &recordingGranter{}
	return ledger, g, reconcile.New(ledger, g)
}

func TestParseNotification(t *testing.T) {
	n, err := ParseNotification([]byte(`{"event":"payment.succeeded","object":{"id":"pay_1","status":"succeeded","metadata":{"user_id":"42"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n.Object.ID != "pay_1" || n.HintUserID() != 42 {
		t.Fatalf("notification = %+v", n)
	}
	legacy, _ := ParseNotification([]byte(`{"event":"payment.succeeded","object":{"id":"p","metadata":{"chatId":"7"}}}`))
	if legacy.HintUserID() != 7 {
		t.Fatalf("chatId hint = %d", legacy.HintUserID())
	}
	_, err = ParseNotification([]byte(`{not json`))
	var ve *funnel.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestWebhookTwiceGrantsOnce(t *testing.T) {
	_, g, rec := setup()
	w := NewWebhook(rec, nil, false)
	n, _ := ParseNotification([]byte(`{"event":"payment.succeeded","object":{"id":"pay_1"}}`))

	if v, err := w.Handle(context.Background(), n); v != VerdictGranted || err != nil {
		t.Fatalf("first = %s, %v", v, err)
	}
	if v, err := w.Handle(context.Background(), n); v != VerdictDuplicate || err != nil {
		t.Fatalf("second = %s, %v", v, err)
	}
	if g.count() != 1 {
		t.Fatalf("grants = %d", g.count())
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	_, g, rec := setup()
	w := NewWebhook(rec, nil, false)
	n, _ := ParseNotification([]byte(`{"event":"payment.canceled","object":{"id":"pay_1"}}`))
	if v, _ := w.Handle(context.Background(), n); v != VerdictIgnored || g.count() != 0 {
		t.Fatalf("verdict = %s, grants = %d", v, g.count())
	}
}

func TestWebhookVerification(t *testing.T) {
	_, g, rec := setup()
	status := &statusStub{statuses: map[string]payment.Status{"pay_1": payment.StatusPending}}
	w := NewWebhook(rec, status, true)
	n, _ := ParseNotification([]byte(`{"event":"payment.succeeded","object":{"id":"pay_1"}}`))

	if v, _ := w.Handle(context.Background(), n); v != VerdictPending || g.count() != 0 {
		t.Fatalf("unverified webhook = %s, grants = %d", v, g.count())
	}
	status.err = &funnel.GatewayError{Op: "get payment"}
	if v, err := w.Handle(context.Background(), n); v != VerdictPending || err == nil || g.count() != 0 {
		t.Fatalf("lookup failure must not confirm: %s %v", v, err)
	}
	status.err = nil
	status.statuses["pay_1"] = payment.StatusSucceeded
	if v, _ := w.Handle(context.Background(), n); v != VerdictGranted {
		t.Fatalf("verified webhook = %s", v)
	}
}

func TestForgedWebhookLeavesFunnelUntouched(t *testing.T) {
	ctx := context.Background()
	states := state.NewMemory()
	if err := states.Set(42, state.FunnelState{Step: state.StepAwaitingPayment, Email: "buyer@example.com", PaymentID: "pay_1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before, _ := states.Get(42)
	ledger := payment.NewLedger()
	ledger.Record("pay_1", "ord_1", 42)
	fake := chattest.New()
	rec := reconcile.New(ledger, grant.New(grant.Options{
		Store:    states,
		Chat:     fake,
		Notifier: access.NewNotifier(access.NewStore(), fake, []int64{100}, access.Texts{}),
		Content:  grant.Content{Text: "Welcome aboard"},
		Sleep:    func(context.Context, time.Duration) {},
	}))

	cases := []struct {
		name    string
		checker StatusChecker
		body    string
	}{
		{"own unpaid payment", &statusStub{statuses: map[string]payment.Status{"pay_1": payment.StatusPending}}, `{"event":"payment.succeeded","object":{"id":"pay_1","status":"succeeded"}}`},
		{"made up id with hint", &statusStub{statuses: map[string]payment.Status{}}, `{"event":"payment.succeeded","object":{"id":"made_up","metadata":{"user_id":"777"}}}`},
		{"payments disabled", payment.Unavailable{}, `{"event":"payment.succeeded","object":{"id":"pay_1"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := ParseNotification([]byte(tc.body))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if v, _ := NewWebhook(rec, tc.checker, true).Handle(ctx, n); v != VerdictPending {
				t.Fatalf("verdict = %s, want pending", v)
			}
			if st, _ := states.Get(42); st != before {
				t.Fatalf("state changed: %+v", st)
			}
			if _, ok := states.Get(777); ok {
				t.Fatal("hinted user must not be created")
			}
			if len(fake.To(42)) != 0 || len(fake.To(777)) != 0 || len(fake.To(100)) != 0 {
				t.Fatal("no message may be sent for an unconfirmed payment")
			}
		})
	}
}

func TestHintUserIDSkipsInvalidValues(t *testing.T) {
	cases := []struct {
		body string
		want int64
	}{
		{`{"object":{"metadata":{"user_id":0,"chat_id":"55"}}}`, 55},
		{`{"object":{"metadata":{"user_id":-3,"chatId":9}}}`, 9},
		{`{"object":{"metadata":{"user_id":4.5,"chat_id":"12"}}}`, 12},
		{`{"object":{"metadata":{"user_id":"-8","chat_id":"0"}}}`, 0},
		{`{"object":{"metadata":{"user_id":" 77 "}}}`, 77},
		{`{"object":{"metadata":{"user_id":101}}}`, 101},
	}
	for _, tc := range cases {
		n, err := ParseNotification([]byte(tc.body))
		if err != nil {
			t.Fatalf("parse %s: %v", tc.body, err)
		}
		if got := n.HintUserID(); got != tc.want {
			t.Fatalf("HintUserID(%s) = %d, want %d", tc.body, got, tc.want)
		}
	}
}

func TestWebhookUnresolved(t *testing.T) {
	_, g, rec := setup()
	w := NewWebhook(rec, nil, false)
	n, _ := ParseNotification([]byte(`{"event":"payment.succeeded","object":{"id":"pay_x"}}`))
	v, err := w.Handle(context.Background(), n)
	var ue *funnel.UnresolvedPaymentError
	if v != VerdictUnresolved || !errors.As(err, &ue) || g.count() != 0 {
		t.Fatalf("verdict = %s, err = %v", v, err)
	}
}

func TestReturnAdapter(t *testing.T) {
	cases := []struct {
		name    string
		orderID string
		status  payment.Status
		err     error
		want    Verdict
		grants  int
	}{
		{"unknown order", "ord_missing", payment.StatusSucceeded, nil, VerdictPending, 0},
		{"empty order", "", payment.StatusSucceeded, nil, VerdictPending, 0},
		{"pending", "ord_1", payment.StatusPending, nil, VerdictPending, 0},
		{"canceled", "ord_1", payment.StatusCanceled, nil, VerdictFailed, 0},
		{"lookup error", "ord_1", "", errors.New("timeout"), VerdictPending, 0},
		{"succeeded", "ord_1", payment.StatusSucceeded, nil, VerdictGranted, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger, g, rec := setup()
			status := &statusStub{statuses: map[string]payment.Status{"pay_1": tc.status}, err: tc.err}
			r := NewReturn(ledger, status, rec)
			v, _ := r.Handle(context.Background(), tc.orderID)
			if v != tc.want || g.count() != tc.grants {
				t.Fatalf("verdict = %s, grants = %d", v, g.count())
			}
			if tc.name == "unknown order" && status.calls != 0 {
				t.Fatal("unknown order must not reach the gateway")
			}
		})
	}
}

func TestReturnAfterWebhookIsDuplicate(t *testing.T) {
	ledger, g, rec := setup()
	n, _ := ParseNotification([]byte(`{"event":"payment.succeeded","object":{"id":"pay_1"}}`))
	_, _ = NewWebhook(rec, nil, false).Handle(context.Background(), n)

	status := &statusStub{statuses: map[string]payment.Status{"pay_1": payment.StatusSucceeded}}
	v, err := NewReturn(ledger, status, rec).Handle(context.Background(), "ord_1")
	if v != VerdictDuplicate || err != nil || !v.Confirmed() {
		t.Fatalf("verdict = %s, %v", v, err)
	}
	if g.count() != 1 {
		t.Fatalf("grants = %d", g.count())
	}
}

func TestManualOverride(t *testing.T) {
	_, g, rec := setup()
	states := state.NewMemory()
	_ = states.Set(42, state.FunnelState{Step: state.StepAwaitingPayment, PaymentID: "pay_1"})
	m := NewManualOverride(rec, states, func(id int64) bool { return id == 100 })

	err := m.Grant(context.Background(), 999, 42)
	var ua *funnel.UnauthorizedActionError
	if !errors.As(err, &ua) || g.count() != 0 {
		t.Fatalf("non-operator: %v, grants = %d", err, g.count())
	}
	if err := m.Grant(context.Background(), 100, 42); err != nil {
		t.Fatalf("operator: %v", err)
	}
	if g.count() != 1 || !rec.Processed("pay_1") {
		t.Fatal("override must grant and mark the recorded payment")
	}
	if err := m.Grant(context.Background(), 100, 0); err == nil {
		t.Fatal("expected validation error for empty user")
	}
}
