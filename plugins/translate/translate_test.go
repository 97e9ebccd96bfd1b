package translateplugin

import (
	"testing"
	"time"
)

func TestFindTarget(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"en", "en", true},
		{"EN", "en", true},
		{"ja", "ja", true},
		{"zh-CN", "zh-CN", true},
		{"zh-TW", "zh-TW", true},
		{"japanese", "ja", true},
		{"Japanese", "ja", true},
		{"german", "de", true},
		{"chinese", "zh-CN", true},
		{"日本語", "ja", true},
		{"en-US", "en", true},
		{"", "", false},
		{"tlh", "", false}, // klingon is not on the menu
	}
	for _, c := range cases {
		got, ok := findTarget(c.in)
		if ok != c.ok {
			t.Fatalf("findTarget(%q) ok=%v, want %v", c.in, ok, c.ok)
		}
		if ok && got.Code != c.want {
			t.Fatalf("findTarget(%q) = %q, want %q", c.in, got.Code, c.want)
		}
	}
}

func TestDecodeGtx(t *testing.T) {
	body := []byte(`[[["Hello","こんにちは",null,null,10],[" world","せかい",null,null,10]],null,"ja"]`)
	out, err := decodeGtx(body)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hello world" {
		t.Fatalf("got %q", out)
	}

	if _, err := decodeGtx([]byte(`{"oops":true}`)); err == nil {
		t.Fatal("want error for non-array body")
	}
	if _, err := decodeGtx([]byte(`[[]]`)); err == nil {
		t.Fatal("want error for empty segments")
	}
}

func TestUserLimitsPerMinute(t *testing.T) {
	l := newUserLimits(3, 20, 50)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if ok, reason := l.Allow(42, now); !ok {
			t.Fatalf("call %d denied: %s", i, reason)
		}
	}
	ok, reason := l.Allow(42, now)
	if ok || reason != "分あたりの上限" {
		t.Fatalf("4th call ok=%v reason=%q", ok, reason)
	}

	// Another user has their own bucket.
	if ok, _ := l.Allow(43, now); !ok {
		t.Fatal("other user denied")
	}

	// A minute later the bucket has refilled.
	if ok, _ := l.Allow(42, now.Add(time.Minute+time.Second)); !ok {
		t.Fatal("bucket did not refill")
	}
}

func TestUserLimitsHourlyCap(t *testing.T) {
	l := newUserLimits(1000, 5, 50)
	now := time.Now()

	for i := 0; i < 5; i++ {
		if ok, reason := l.Allow(42, now.Add(time.Duration(i)*time.Millisecond)); !ok {
			t.Fatalf("call %d denied: %s", i, reason)
		}
	}
	ok, reason := l.Allow(42, now.Add(6*time.Millisecond))
	if ok || reason != "1時間あたりの上限" {
		t.Fatalf("6th call ok=%v reason=%q", ok, reason)
	}

	// Window resets after an hour.
	if ok, _ := l.Allow(42, now.Add(time.Hour+time.Second)); !ok {
		t.Fatal("hour window did not reset")
	}
}

func TestResultCacheLRU(t *testing.T) {
	c := newResultCache(2)
	c.Put("en", "a", "A")
	c.Put("en", "b", "B")

	if v, ok := c.Get("en", "a"); !ok || v != "A" {
		t.Fatalf("get a: %q %v", v, ok)
	}
	// "b" is now the least recently used and gets evicted.
	c.Put("en", "c", "C")
	if _, ok := c.Get("en", "b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("en", "a"); !ok || v != "A" {
		t.Fatalf("a lost: %q %v", v, ok)
	}

	// Same text, different target is a different key.
	if _, ok := c.Get("ja", "a"); ok {
		t.Fatal("target must be part of the key")
	}
}
