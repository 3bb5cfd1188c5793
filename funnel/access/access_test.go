package access

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/m3rciful/funnelbot/funnel"
	"github.com/m3rciful/funnelbot/funnel/chat/chattest"
)

const (
	operatorID = int64(100)
	userID     = int64(5)
)

func isOperator(id int64) bool { return id == operatorID }

func TestNotifyReachesEveryOperator(t *testing.T) {
	fake := chattest.New()
	fake.SetFail(101, errors.New("blocked"))
	store := NewStore()
	n := NewNotifier(store, fake, []int64{101, operatorID, 102}, Texts{})

	id, err := n.Notify(context.Background(), Ticket{
		Title:  "New request: free marathon",
		UserID: userID,
		Email:  "user@example.com",
		Flow:   FlowFree,
	})
	var nde *funnel.NotificationDeliveryError
	if !errors.As(err, &nde) || nde.RecipientID != 101 {
		t.Fatalf("expected delivery error for 101, got %v", err)
	}
	if id == "" {
		t.Fatal("request must be opened even when one operator fails")
	}
	for _, op := range []int64{operatorID, 102} {
		msg, ok := fake.Last(op)
		if !ok {
			t.Fatalf("operator %d not notified", op)
		}
		if !strings.Contains(msg.Text, "Email: user@example.com") || !strings.Contains(msg.Text, "Chat ID: 5") {
			t.Fatalf("ticket text = %q", msg.Text)
		}
		btn := msg.Keyboard[0][0]
		if btn.Action != GrantAction || btn.Payload != id {
			t.Fatalf("approval button = %+v", btn)
		}
	}
	if req, ok := store.Get(id); !ok || req.Flow != FlowFree || req.Issued {
		t.Fatalf("stored request = %+v", req)
	}
}

func TestNotifyWithoutOperators(t *testing.T) {
	store := NewStore()
	n := NewNotifier(store, chattest.New(), nil, Texts{})
	id, err := n.Notify(context.Background(), Ticket{UserID: 1})
	if err != nil || id != "" {
		t.Fatalf("got %q, %v", id, err)
	}
}

func newDialogue(t *testing.T) (*Dialogue, *Store, *chattest.Fake, string) {
	t.Helper()
	fake := chattest.New()
	store := NewStore()
	req := store.Open(userID, "user@example.com", FlowFree, "")
	d := NewDialogue(store, fake, DialogueOptions{IsOperator: isOperator, ChannelLink: "https://t.me/chan"})
	return d, store, fake, req.ID
}

func TestDialogueGrantsOnce(t *testing.T) {
	d, store, fake, id := newDialogue(t)
	ctx := context.Background()

	if err := d.Begin(ctx, operatorID, id); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if handled, err := d.Input(ctx, operatorID, " secret "); !handled || err != nil {
		t.Fatalf("password input = %v, %v", handled, err)
	}
	if handled, err := d.Input(ctx, operatorID, "https://course.example"); !handled || err != nil {
		t.Fatalf("link input = %v, %v", handled, err)
	}

	msgs := fake.To(userID)
	if len(msgs) != 2 {
		t.Fatalf("user got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "Login: user@example.com") || !strings.Contains(msgs[0].Text, "Password: secret") ||
		!strings.Contains(msgs[0].Text, "https://course.example") {
		t.Fatalf("credentials = %q", msgs[0].Text)
	}
	if msgs[1].Keyboard[0][0].URL != "https://t.me/chan" {
		t.Fatalf("channel button = %+v", msgs[1].Keyboard)
	}
	if req, _ := store.Get(id); !req.Issued {
		t.Fatal("request must be issued")
	}
	if d.Active(operatorID) {
		t.Fatal("session must be cleared")
	}
	if !fake.Contains(operatorID, "Access granted to user 5") {
		t.Fatal("operator confirmation missing")
	}

	fake.Reset()
	if err := d.Begin(ctx, operatorID, id); err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if d.Active(operatorID) {
		t.Fatal("issued request must not open a session")
	}
	if !fake.Contains(operatorID, "already been granted") {
		t.Fatal("expected already issued reply")
	}
	if len(fake.To(userID)) != 0 {
		t.Fatal("user must not receive anything twice")
	}
}

func TestDialogueRejectsNonOperator(t *testing.T) {
	d, store, fake, id := newDialogue(t)
	err := d.Begin(context.Background(), 999, id)
	var ua *funnel.UnauthorizedActionError
	if !errors.As(err, &ua) || ua.ActorID != 999 {
		t.Fatalf("expected UnauthorizedActionError, got %v", err)
	}
	if d.Active(999) {
		t.Fatal("non-operator must not get a session")
	}
	if handled, _ := d.Input(context.Background(), 999, "secret"); handled {
		t.Fatal("non-operator text must not be handled")
	}
	if req, _ := store.Get(id); req.Issued {
		t.Fatal("request must stay open")
	}
	if !fake.Contains(999, "administrators only") {
		t.Fatal("denial reply missing")
	}
}

func TestDialogueUnknownRequest(t *testing.T) {
	d, _, fake, _ := newDialogue(t)
	if err := d.Begin(context.Background(), operatorID, "missing"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if d.Active(operatorID) || !fake.Contains(operatorID, "Request not found") {
		t.Fatal("unknown request must short-circuit")
	}
}

func TestDialogueIssuedMidway(t *testing.T) {
	d, store, fake, id := newDialogue(t)
	ctx := context.Background()
	_ = d.Begin(ctx, operatorID, id)
	_, _ = d.Input(ctx, operatorID, "pw")
	if _, err := store.MarkIssued(id); err != nil {
		t.Fatalf("claim: %v", err)
	}
	handled, err := d.Input(ctx, operatorID, "https://course.example")
	if !handled || err != nil {
		t.Fatalf("input = %v, %v", handled, err)
	}
	if len(fake.To(userID)) != 0 {
		t.Fatal("issued request must not be delivered again")
	}
	if d.Active(operatorID) {
		t.Fatal("session must be cleared on short-circuit")
	}
}

func TestDialogueReleasesOnDeliveryFailure(t *testing.T) {
	d, store, fake, id := newDialogue(t)
	ctx := context.Background()
	fake.SetFail(userID, errors.New("bot was blocked"))
	_ = d.Begin(ctx, operatorID, id)
	_, _ = d.Input(ctx, operatorID, "pw")
	_, err := d.Input(ctx, operatorID, "https://course.example")
	var nde *funnel.NotificationDeliveryError
	if !errors.As(err, &nde) || nde.Role != funnel.RoleUser {
		t.Fatalf("expected user delivery error, got %v", err)
	}
	if req, _ := store.Get(id); req.Issued {
		t.Fatal("failed delivery must release the claim")
	}
	if !d.Active(operatorID) {
		t.Fatal("operator may retry the link step")
	}
}

func TestMarkIssuedSingleWinner(t *testing.T) {
	store := NewStore()
	req := store.Open(1, "a@b.c", FlowPaid, "pay_1")
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.MarkIssued(req.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d", wins)
	}
}
