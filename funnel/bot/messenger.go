// Package bot connects the funnel to Telegram: the telebot Messenger,
// command and callback handlers and the application lifecycle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/m3rciful/funnelbot/core/telegram/keyboard"
	"github.com/m3rciful/funnelbot/funnel/chat"

	tele "gopkg.in/telebot.v4"
)

// ErrNotAttached is returned by Messenger calls made before the bot exists.
var ErrNotAttached = errors.New("bot: messenger is not attached")

// Messenger implements chat.Messenger over a telebot bot. It is created
// unbound so the funnel can be wired before the runtime starts.
type Messenger struct {
	bot atomic.Pointer[tele.Bot]
}

// NewMessenger returns an unbound Messenger.
func NewMessenger() *Messenger { return &Messenger{} }

// Attach binds b.
func (m *Messenger) Attach(b *tele.Bot) { m.bot.Store(b) }

func (m *Messenger) client() (*tele.Bot, error) {
	if b := m.bot.Load(); b != nil {
		return b, nil
	}
	return nil, ErrNotAttached
}

func (m *Messenger) SendText(_ context.Context, chatID int64, text string, kb chat.Keyboard) error {
	b, err := m.client()
	if err != nil {
		return err
	}
	opts := []any{&tele.SendOptions{DisableWebPagePreview: true}}
	if len(kb) > 0 {
		opts = append(opts, markup(kb))
	}
	_, err = b.Send(tele.ChatID(chatID), text, opts...)
	return err
}

func (m *Messenger) ClearControls(_ context.Context, ref chat.MessageRef) error {
	if ref.IsZero() {
		return nil
	}
	b, err := m.client()
	if err != nil {
		return err
	}
	_, err = b.EditReplyMarkup(tele.StoredMessage{MessageID: ref.MessageID, ChatID: ref.ChatID}, keyboard.Empty())
	return err
}

func (m *Messenger) SendMedia(_ context.Context, chatID int64, media chat.Media) error {
	b, err := m.client()
	if err != nil {
		return err
	}
	var what any
	switch media.Kind {
	case chat.MediaVideoNote:
		what = &tele.VideoNote{File: tele.FromDisk(media.Path), Duration: media.Duration, Length: media.Length}
	case chat.MediaDocument:
		what = &tele.Document{File: tele.FromDisk(media.Path), FileName: filepath.Base(media.Path)}
	default:
		return fmt.Errorf("bot: unsupported media kind %q", media.Kind)
	}
	_, err = b.Send(tele.ChatID(chatID), what)
	return err
}

// IsMember reports whether userID belongs to the channel. channel is a
// username with or without the leading @.
func (m *Messenger) IsMember(_ context.Context, channel string, userID int64) (bool, error) {
	b, err := m.client()
	if err != nil {
		return false, err
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return false, errors.New("bot: no channel configured")
	}
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	ch, err := b.ChatByUsername(channel)
	if err != nil {
		return false, err
	}
	member, err := b.ChatMemberOf(ch, &tele.User{ID: userID})
	if err != nil {
		return false, err
	}
	return isMemberRole(member.Role), nil
}

func (m *Messenger) Identity(_ context.Context, userID int64) (string, error) {
	b, err := m.client()
	if err != nil {
		return "", err
	}
	ch, err := b.ChatByID(userID)
	if err != nil {
		return "", err
	}
	return chat.FormatIdentity(ch.Username, userID), nil
}

func isMemberRole(role tele.MemberStatus) bool {
	return role != "" && role != tele.Left && role != tele.Kicked
}

func markup(kb chat.Keyboard) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(kb))
	for _, row := range kb {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, b := range row {
			r = append(r, keyboard.InlineBtn{Text: b.Text, Unique: b.Action, Data: b.Payload, URL: b.URL})
		}
		rows = append(rows, r)
	}
	return keyboard.InlineButtonsRows(rows...)
}
