package middleware

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

// fakeContext implements the few tele.Context methods the middleware touches.
type fakeContext struct {
	tele.Context
	user   *tele.User
	update tele.Update
	store  map[string]any
}

func newFakeContext(userID int64, upd tele.Update) *fakeContext {
	return &fakeContext{user: &tele.User{ID: userID}, update: upd, store: map[string]any{}}
}

func (f *fakeContext) Sender() *tele.User      { return f.user }
func (f *fakeContext) Chat() *tele.Chat        { return &tele.Chat{ID: f.user.ID} }
func (f *fakeContext) Update() tele.Update     { return f.update }
func (f *fakeContext) Text() string            { return "" }
func (f *fakeContext) Get(key string) any      { return f.store[key] }
func (f *fakeContext) Set(key string, val any) { f.store[key] = val }

func TestAdminOnlyMiddleware(t *testing.T) {
	var rejected, passed int
	mw := AdminOnlyMiddleware(AdminOptions{
		IsAdmin:  func(id int64) bool { return id == 1 },
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	h := mw(func(tele.Context) error { passed++; return nil })

	_ = h(newFakeContext(1, tele.Update{Message: &tele.Message{}}))
	_ = h(newFakeContext(2, tele.Update{Message: &tele.Message{}}))
	if passed != 1 || rejected != 1 {
		t.Fatalf("passed=%d rejected=%d, want 1/1", passed, rejected)
	}
}

func TestAdminOnlyMiddlewareNilCheckRejects(t *testing.T) {
	h := AdminOnlyMiddleware(AdminOptions{})(func(tele.Context) error {
		t.Fatal("handler must not run without an allow-list")
		return nil
	})
	if err := h(newFakeContext(1, tele.Update{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	var limited, passed int
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	h := mw(func(tele.Context) error { passed++; return nil })

	msg := tele.Update{Message: &tele.Message{}}
	_ = h(newFakeContext(7, msg))
	_ = h(newFakeContext(7, msg))
	_ = h(newFakeContext(8, msg))
	cb := tele.Update{Callback: &tele.Callback{}}
	_ = h(newFakeContext(7, cb))

	if passed != 3 || limited != 1 {
		t.Fatalf("passed=%d limited=%d, want 3/1", passed, limited)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	if err := h(newFakeContext(1, tele.Update{ID: 5})); err == nil {
		t.Fatal("expected error from recovered panic")
	}
	h = RecoverMiddleware(func(tele.Context) error { return errors.New("plain") })
	if err := h(newFakeContext(1, tele.Update{})); err == nil || err.Error() != "plain" {
		t.Fatalf("unexpected error: %v", err)
	}
}
