// Package chattest provides an in-memory chat.Messenger for tests.
package chattest

import (
	"context"
	"strings"
	"sync"

	"github.com/m3rciful/funnelbot/funnel/chat"
)

// Message is a recorded SendText call.
type Message struct {
	ChatID   int64
	Text     string
	Keyboard chat.Keyboard
}

// MediaCall is a recorded SendMedia call.
type MediaCall struct {
	ChatID int64
	Media  chat.Media
}

// Fake records every call. Failing chats return the configured error.
type Fake struct {
	mu sync.Mutex

	Messages []Message
	Media    []MediaCall
	Cleared  []chat.MessageRef

	// Fail maps a chat id to the error returned for sends to it.
	Fail map[int64]error
	// Members lists user ids subscribed to any channel.
	Members map[int64]bool
	// Usernames feeds Identity.
	Usernames map[int64]string
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Fail:      map[int64]error{},
		Members:   map[int64]bool{},
		Usernames: map[int64]string{},
	}
}

var _ chat.Messenger = (*Fake)(nil)

func (f *Fake) SendText(_ context.Context, chatID int64, text string, kb chat.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[chatID]; err != nil {
		return err
	}
	f.Messages = append(f.Messages, Message{ChatID: chatID, Text: text, Keyboard: kb})
	return nil
}

func (f *Fake) ClearControls(_ context.Context, ref chat.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Cleared = append(f.Cleared, ref)
	return nil
}

func (f *Fake) SendMedia(_ context.Context, chatID int64, m chat.Media) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[chatID]; err != nil {
		return err
	}
	f.Media = append(f.Media, MediaCall{ChatID: chatID, Media: m})
	return nil
}

func (f *Fake) IsMember(_ context.Context, _ string, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Members[userID], nil
}

func (f *Fake) Identity(_ context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return chat.FormatIdentity(f.Usernames[userID], userID), nil
}

// SetFail makes sends to chatID fail with err; nil clears it.
func (f *Fake) SetFail(chatID int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Fail, chatID)
		return
	}
	f.Fail[chatID] = err
}

// To returns the messages sent to chatID.
func (f *Fake) To(chatID int64) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.Messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// MediaTo returns the media sent to chatID.
func (f *Fake) MediaTo(chatID int64) []MediaCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []MediaCall
	for _, m := range f.Media {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the last message sent to chatID.
func (f *Fake) Last(chatID int64) (Message, bool) {
	msgs := f.To(chatID)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Contains reports whether any message to chatID contains substr.
func (f *Fake) Contains(chatID int64, substr string) bool {
	for _, m := range f.To(chatID) {
		if strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

// Reset forgets recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages, f.Media, f.Cleared = nil, nil, nil
}
