package router

import (
	"reflect"
	"testing"
)

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"/remind 10m meeting", []string{"/remind", "10m", "meeting"}},
		{`/remind at 2026-01-01 "new year party"`, []string{"/remind", "at", "2026-01-01", "new year party"}},
		{"  /ping  ", []string{"/ping"}},
		{`/cmd 'a b' --k=v`, []string{"/cmd", "a b", "--k=v"}},
		{"", nil},
	}
	for _, tc := range cases {
		got := tokenizeCommandLine(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	pos, flags, bools := parseFlags([]string{"10m", "--notify", "-l", "ja", "--msg=hi", "rest"})
	if !reflect.DeepEqual(pos, []string{"10m", "rest"}) {
		t.Errorf("pos = %v", pos)
	}
	if flags["l"] != "ja" || flags["msg"] != "hi" {
		t.Errorf("flags = %v", flags)
	}
	if !bools["notify"] {
		t.Errorf("bools = %v", bools)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"remind list", "remind_list"},
		{"remind-list", "remind_list"},
		{"Remind", "remind"},
		{"7days", "cmd_7days"},
		{"__x__", "x"},
		{"!!!", ""},
	}
	for _, tc := range cases {
		if got := sanitizeTelegramCommand(tc.in); got != tc.want {
			t.Errorf("sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCommandTreeRouting(t *testing.T) {
	t.Parallel()

	root := newRoot()
	root.add([]string{"remind"}, Command{Route: "remind"})
	root.add([]string{"remind", "list"}, Command{Route: "remind list"})

	if n := root.find([]string{"remind", "list"}); n == nil || n.cmd == nil || n.cmd.Route != "remind list" {
		t.Fatalf("find remind list = %+v", n)
	}
	if n := root.find([]string{"remind"}); n == nil || n.cmd == nil || n.cmd.Route != "remind" {
		t.Fatalf("find remind = %+v", n)
	}
	if n := root.find([]string{"nope"}); n != nil {
		t.Fatalf("find nope = %+v, want nil", n)
	}
	if names := root.childNames(); !reflect.DeepEqual(names, []string{"remind"}) {
		t.Fatalf("childNames = %v", names)
	}
}
