package transport

import "testing"

func TestMarkupKeepsRawCallbackData(t *testing.T) {
	kb := Keyboard{
		Row(Button{Text: "Mensal", Data: "buy:AB12CD34"}),
		Row(Button{Text: "Site", URL: "https://example.com"}),
	}
	m := Markup(kb)
	if m == nil || len(m.InlineKeyboard) != 2 {
		t.Fatalf("markup = %+v", m)
	}
	if got := m.InlineKeyboard[0][0].Data; got != "buy:AB12CD34" {
		t.Fatalf("data = %q", got)
	}
	if m.InlineKeyboard[0][0].Unique != "" {
		t.Fatal("unique must stay empty so callback data is delivered verbatim")
	}
	if Markup(nil) != nil {
		t.Fatal("empty keyboard should produce no markup")
	}
}

func TestIsAdmin(t *testing.T) {
	for status, want := range map[string]bool{
		StatusCreator:       true,
		StatusAdministrator: true,
		"member":            false,
		"left":              false,
	} {
		if got := IsAdmin(status); got != want {
			t.Errorf("IsAdmin(%q) = %v", status, got)
		}
	}
}
