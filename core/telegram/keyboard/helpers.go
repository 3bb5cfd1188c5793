// Package keyboard builds telebot inline keyboards.
package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn is either a callback button (Unique + Data) or a link button (URL).
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	URL    string
}

// Inline renders the button as a tele.InlineButton.
func (b InlineBtn) Inline() tele.InlineButton {
	if b.URL != "" {
		return tele.InlineButton{Text: b.Text, URL: b.URL}
	}
	return tele.InlineButton{Text: b.Text, Unique: b.Unique, Data: b.Data}
}

// InlineButtons builds an inline keyboard with one button per row.
func InlineButtons(buttons []InlineBtn) *tele.ReplyMarkup {
	rows := make([][]InlineBtn, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []InlineBtn{b})
	}
	return InlineButtonsRows(rows...)
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn. Empty rows are skipped.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = btn.Inline()
		}
		inline = append(inline, r)
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}

// Empty returns a markup that removes an inline keyboard when used in an edit.
func Empty() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{}}
}

// Single is a one-button keyboard.
func Single(b InlineBtn) *tele.ReplyMarkup {
	return InlineButtonsRows([]InlineBtn{b})
}
