package keyboard

import "testing"

func TestInlineButtonsRows(t *testing.T) {
	m := InlineButtonsRows(
		[]InlineBtn{{Text: "Pay", URL: "https://pay.example/1"}},
		nil,
		[]InlineBtn{{Text: "Grant", Unique: "grant_access", Data: "req-1"}},
	)
	if len(m.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(m.InlineKeyboard))
	}
	pay := m.InlineKeyboard[0][0]
	if pay.URL != "https://pay.example/1" || pay.Unique != "" {
		t.Fatalf("unexpected url button: %+v", pay)
	}
	grant := m.InlineKeyboard[1][0]
	if grant.Unique != "grant_access" || grant.Data != "req-1" {
		t.Fatalf("unexpected callback button: %+v", grant)
	}
}

func TestEmpty(t *testing.T) {
	if m := Empty(); m.InlineKeyboard == nil || len(m.InlineKeyboard) != 0 {
		t.Fatalf("Empty must carry a non-nil empty keyboard, got %+v", m.InlineKeyboard)
	}
}
