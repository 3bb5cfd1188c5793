// Package chat describes the chat transport the funnel talks to.
package chat

import (
	"context"
	"fmt"
)

// Button is either an action button (Action and optional Payload) or a link button (URL).
type Button struct {
	Text    string
	Action  string
	Payload string
	URL     string
}

// Keyboard is a list of button rows.
type Keyboard [][]Button

// Row is shorthand for a single-row keyboard.
func Row(buttons ...Button) Keyboard {
	return Keyboard{buttons}
}

// MessageRef identifies a previously sent message whose controls can be edited.
type MessageRef struct {
	ChatID    int64
	MessageID string
}

// IsZero reports whether the reference points nowhere.
func (r MessageRef) IsZero() bool { return r.ChatID == 0 || r.MessageID == "" }

// MediaKind selects how a media file is delivered.
type MediaKind string

const (
	MediaVideoNote MediaKind = "video_note"
	MediaDocument  MediaKind = "document"
)

// Media is a file delivered from local disk.
type Media struct {
	Kind MediaKind
	Path string
	// Duration and Length apply to video notes.
	Duration int
	Length   int
}

// VideoNote returns the round video format used by the funnel scenes.
func VideoNote(path string) Media {
	return Media{Kind: MediaVideoNote, Path: path, Duration: 60, Length: 640}
}

// Messenger is the set of transport operations the funnel needs.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb Keyboard) error
	ClearControls(ctx context.Context, ref MessageRef) error
	SendMedia(ctx context.Context, chatID int64, m Media) error
	IsMember(ctx context.Context, channel string, userID int64) (bool, error)
	// Identity returns a human readable handle such as "@name (id: 42)".
	Identity(ctx context.Context, userID int64) (string, error)
}

// FormatIdentity renders the identity line shown to operators.
func FormatIdentity(username string, id int64) string {
	if username == "" {
		return fmt.Sprintf("id: %d", id)
	}
	return fmt.Sprintf("@%s (id: %d)", username, id)
}
