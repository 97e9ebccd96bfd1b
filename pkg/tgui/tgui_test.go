package tgui

import (
	"testing"
	"time"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel…"},
		{"こんにちは", 3, "こんに…"},
		{"abc", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestCallbackData(t *testing.T) {
	t.Parallel()

	if got := Data("reminder", "clear_yes", "tok"); got != "reminder:clear_yes:tok" {
		t.Fatalf("Data = %q", got)
	}
	if got := Data("reminder", "clear_no", ""); got != "reminder:clear_no" {
		t.Fatalf("Data without payload = %q", got)
	}

	type payload struct {
		ID string `json:"id"`
	}
	packed, err := PackJSON(payload{ID: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	var out payload
	if err := UnpackJSON(packed, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != "abc" {
		t.Fatalf("round-trip = %+v", out)
	}
}

func TestTokenStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewTokenStore()
	tok := s.PutString("payload")
	if tok == "" || tok[0] != '~' {
		t.Fatalf("token = %q", tok)
	}
	got, ok := s.GetString(tok)
	if !ok || got != "payload" {
		t.Fatalf("get = %q, %v", got, ok)
	}
	if _, ok := s.GetString("~missing"); ok {
		t.Fatal("unknown token should miss")
	}
}

func TestTokenStoreExpiry(t *testing.T) {
	t.Parallel()

	s := NewTokenStore().WithTTL(10 * time.Millisecond)
	tok := s.PutString("soon gone")
	time.Sleep(30 * time.Millisecond)
	if _, ok := s.GetString(tok); ok {
		t.Fatal("expired token should miss")
	}
}

func TestHTMLHelpers(t *testing.T) {
	t.Parallel()

	if got := B("a<b").String(); got != "<b>a&lt;b</b>" {
		t.Fatalf("B = %q", got)
	}
	if got := Mention("友", 42).String(); got != `<a href="tg://user?id=42">友</a>` {
		t.Fatalf("Mention = %q", got)
	}
	if got := JoinH(" ", Code("id"), Esc(""), Esc("x<y")).String(); got != "<code>id</code> x&lt;y" {
		t.Fatalf("JoinH = %q", got)
	}
}

func TestBuilderEscapesAndDefaults(t *testing.T) {
	t.Parallel()

	msg := New().
		Title("📋", "一覧").
		Line("a<b").
		Blank().
		KV("ID", "x&y").
		Code("abc<def").
		Build()

	want := "📋 <b>一覧</b>\na&lt;b\n\n• <b>ID</b>: x&amp;y\n<code>abc&lt;def</code>"
	if msg.Text != want {
		t.Fatalf("text = %q, want %q", msg.Text, want)
	}
	if msg.Opt == nil || msg.Opt.ParseMode != "HTML" || !msg.Opt.DisablePreview {
		t.Fatalf("opt = %+v", msg.Opt)
	}
	if msg.Opt.ReplyMarkupAdapter != nil {
		t.Fatal("no keyboard attached, markup should be nil")
	}

	kb := ConfirmInline(Btn("はい", Data("p", "yes", "t")), Btn("いいえ", Data("p", "no", "")))
	withKB := New().Line("?").Inline(kb).Build()
	if withKB.Opt.ReplyMarkupAdapter == nil {
		t.Fatal("keyboard missing from options")
	}
}
