package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
	"github.com/m3rciful/funnelbot/funnel/access"
	"github.com/m3rciful/funnelbot/funnel/chat"
	"github.com/m3rciful/funnelbot/funnel/flow"

	tele "gopkg.in/telebot.v4"
)

func testConfig(t *testing.T) *coreconfig.Config {
	t.Helper()
	cfg := &coreconfig.Config{AdminIDs: []int64{100}}
	cfg.HTTP.Listen = "127.0.0.1:0"
	cfg.HTTP.PublicURL = "http://localhost:3000"
	cfg.Funnel.MediaDir = "media"
	cfg.Funnel.ChannelLink = "https://t.me/chan"
	cfg.Funnel.ReminderAfter = time.Hour
	cfg.Leads.ExtraIDs = []int64{7}
	return cfg
}

func TestMarkupConvertsKeyboard(t *testing.T) {
	kb := chat.Keyboard{
		{{Text: "Grant", Action: access.GrantAction, Payload: "req-1"}},
		{{Text: "Pay", URL: "https://pay.example"}, {Text: "Later", Action: "later"}},
	}
	m := markup(kb)
	if len(m.InlineKeyboard) != 2 || len(m.InlineKeyboard[1]) != 2 {
		t.Fatalf("rows = %+v", m.InlineKeyboard)
	}
	grantBtn := m.InlineKeyboard[0][0]
	if grantBtn.Unique != access.GrantAction || grantBtn.Data != "req-1" {
		t.Fatalf("grant button = %+v", grantBtn)
	}
	if pay := m.InlineKeyboard[1][0]; pay.URL != "https://pay.example" || pay.Unique != "" {
		t.Fatalf("pay button = %+v", pay)
	}
}

func TestMemberRoles(t *testing.T) {
	cases := map[tele.MemberStatus]bool{
		tele.Creator:       true,
		tele.Administrator: true,
		tele.Member:        true,
		tele.Left:          false,
		tele.Kicked:        false,
		"":                 false,
	}
	for role, want := range cases {
		if got := isMemberRole(role); got != want {
			t.Fatalf("isMemberRole(%q) = %v", role, got)
		}
	}
}

func TestUnattachedMessengerFails(t *testing.T) {
	m := NewMessenger()
	if err := m.SendText(context.Background(), 1, "hi", nil); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("err = %v", err)
	}
	if err := m.ClearControls(context.Background(), chat.MessageRef{}); err != nil {
		t.Fatalf("zero ref must be a no-op: %v", err)
	}
}

func TestNewWiresRegistry(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.reminder == nil {
		t.Fatal("reminder must be wired when a delay is configured")
	}
	opts, err := a.TelegramRunOptions()
	if err != nil {
		t.Fatalf("run options: %v", err)
	}
	if opts.OnStart == nil || opts.OnStop == nil || opts.Routes == nil {
		t.Fatal("lifecycle hooks missing")
	}

	cmds := opts.Registry.Commands()
	for _, name := range []string{"/start", "/myid", "/paid", "/broadcast"} {
		if _, ok := cmds[name]; !ok {
			t.Fatalf("command %s not registered", name)
		}
	}
	if !cmds["/paid"].AdminOnly || !cmds["/broadcast"].AdminOnly || cmds["/start"].AdminOnly {
		t.Fatal("admin flags wrong")
	}
	callbacks := strings.Join(opts.Registry.ListCallbacks(), ",")
	for _, key := range []string{access.GrantAction, flow.ActionMarathonStart, flow.ActionTakeCourse, flow.ActionCheckSubscription} {
		if !strings.Contains(callbacks, key) {
			t.Fatalf("callback %s missing from %s", key, callbacks)
		}
	}
	if got := a.mediaPath("intro.mp4"); got != "media/intro.mp4" {
		t.Fatalf("media path = %s", got)
	}
}

func TestBroadcastWithoutDispatcherSendsDirectly(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if n := a.broadcast(context.Background(), a.leads.All(), "hello"); n != 0 {
		t.Fatalf("unattached messenger queued %d", n)
	}
}
