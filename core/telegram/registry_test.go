package telegram

import (
	"errors"
	"testing"

	"github.com/m3rciful/funnelbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

type fakeSetter struct {
	got []tele.Command
	err error
}

func (f *fakeSetter) SetCommands(opts ...interface{}) error {
	if len(opts) > 0 {
		f.got, _ = opts[0].([]tele.Command)
	}
	return f.err
}

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Start"}); err != nil {
		t.Fatalf("RegisterCommand: %v", err)
	}
	if err := reg.RegisterCommand("/paid", commands.Command{Handler: noop, Description: "Grant", AdminOnly: true}); err != nil {
		t.Fatalf("RegisterCommand: %v", err)
	}
	if err := reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Again"}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := reg.RegisterCommand("myid", commands.Command{Handler: noop, Description: "Id"}); err == nil {
		t.Fatal("expected slash prefix error")
	}

	if key, _, ok := reg.LookupCommand("start"); !ok || key != "/start" {
		t.Fatalf("LookupCommand(start) = %q, %v", key, ok)
	}

	setter := &fakeSetter{}
	if err := InitBotCommands(setter, reg); err != nil {
		t.Fatalf("InitBotCommands: %v", err)
	}
	if len(setter.got) != 1 || setter.got[0].Text != "start" {
		t.Fatalf("published commands = %+v", setter.got)
	}

	setter.err = errors.New("boom")
	if err := InitBotCommands(setter, reg); err == nil {
		t.Fatal("expected SetCommands error to propagate")
	}
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCallback("grant_access", noop); err != nil {
		t.Fatalf("RegisterCallback: %v", err)
	}
	if err := reg.RegisterCallback("grant_access", noop); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, ok := reg.GetCallback("grant_access"); !ok {
		t.Fatal("callback not found")
	}
	if got := reg.ListCallbacks(); len(got) != 1 || got[0] != "grant_access" {
		t.Fatalf("ListCallbacks = %v", got)
	}
}
