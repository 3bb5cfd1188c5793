package router

import (
	"errors"
	"testing"

	tg "github.com/m3rciful/funnelbot/core/telegram"
	"github.com/m3rciful/funnelbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

type fakeContext struct {
	tele.Context
	text  string
	store map[string]any
}

func newTextContext(text string) *fakeContext {
	return &fakeContext{text: text, store: map[string]any{}}
}

func (f *fakeContext) Sender() *tele.User      { return &tele.User{ID: 7} }
func (f *fakeContext) Chat() *tele.Chat        { return &tele.Chat{ID: 7, Type: tele.ChatPrivate} }
func (f *fakeContext) Update() tele.Update     { return tele.Update{ID: 1, Message: &tele.Message{Text: f.text}} }
func (f *fakeContext) Text() string            { return f.text }
func (f *fakeContext) Get(key string) any      { return f.store[key] }
func (f *fakeContext) Set(key string, val any) { f.store[key] = val }

type textRecorder struct {
	calls []string
}

func (r *textRecorder) handler(name string, handled bool, err error) NamedText {
	return NamedText{Name: name, Handler: TextHandlerFunc(func(tele.Context) (bool, error) {
		r.calls = append(r.calls, name)
		return handled, err
	})}
}

func textRoute(t *testing.T, reg *tg.Registry, handlers ...NamedText) tele.HandlerFunc {
	t.Helper()
	routes := TextRoutes(reg, handlers...)
	if len(routes) != 1 || routes[0].Endpoint != tele.OnText {
		t.Fatalf("routes = %+v", routes)
	}
	return routes[0].Handler
}

func TestTextRoutesFirstClaimWins(t *testing.T) {
	rec := &textRecorder{}
	h := textRoute(t, nil,
		rec.handler("access_dialogue", true, nil),
		rec.handler("funnel", true, nil),
	)
	if err := h(newTextContext("secret-password")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0] != "access_dialogue" {
		t.Fatalf("calls = %v, want access_dialogue only", rec.calls)
	}
}

func TestTextRoutesPassesUnclaimedText(t *testing.T) {
	rec := &textRecorder{}
	h := textRoute(t, nil,
		NamedText{Name: "nil"},
		rec.handler("access_dialogue", false, nil),
		rec.handler("funnel", true, nil),
	)
	if err := h(newTextContext("buyer@example.com")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(rec.calls) != 2 || rec.calls[1] != "funnel" {
		t.Fatalf("calls = %v", rec.calls)
	}
}

func TestTextRoutesStopsOnError(t *testing.T) {
	rec := &textRecorder{}
	boom := errors.New("boom")
	h := textRoute(t, nil,
		rec.handler("access_dialogue", false, boom),
		rec.handler("funnel", true, nil),
	)
	if err := h(newTextContext("x")); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("calls = %v", rec.calls)
	}
}

func TestTextRoutesFallsBackToRegistry(t *testing.T) {
	reg := tg.NewRegistry()
	var menu, admin, fallback int
	if err := reg.RegisterCommand("/menu", commands.Command{
		Handler:     func(tele.Context) error { menu++; return nil },
		Description: "Menu",
		Aliases:     []string{"Menu"},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCommand("/broadcast", commands.Command{
		Handler:     func(tele.Context) error { admin++; return nil },
		Description: "Broadcast",
		AdminOnly:   true,
		Aliases:     []string{"Broadcast"},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.SetTextFallback(func(tele.Context) error { fallback++; return nil })

	rec := &textRecorder{}
	h := textRoute(t, reg, rec.handler("funnel", false, nil))
	for _, text := range []string{"Menu", "Broadcast", "hello"} {
		if err := h(newTextContext(text)); err != nil {
			t.Fatalf("%s: %v", text, err)
		}
	}
	if menu != 1 || admin != 0 || fallback != 2 {
		t.Fatalf("menu=%d admin=%d fallback=%d", menu, admin, fallback)
	}
	if len(rec.calls) != 3 {
		t.Fatalf("funnel must see every message first, calls = %v", rec.calls)
	}
}

func TestTextRoutesUnclaimedWithoutRegistry(t *testing.T) {
	h := textRoute(t, nil)
	if err := h(newTextContext("anything")); err != nil {
		t.Fatalf("unclaimed text must not fail: %v", err)
	}
}
