package lua

import (
	"strings"
	"testing"
)

func TestShortSourceLiteral(t *testing.T) {
	got := ShortSource("=mysrc", 60)
	if got != "mysrc" {
		t.Errorf("ShortSource literal = %q, want %q", got, "mysrc")
	}
}

func TestShortSourceFileNameShort(t *testing.T) {
	got := ShortSource("@/tmp/foo.lua", 60)
	if got != "/tmp/foo.lua" {
		t.Errorf("ShortSource filename = %q, want %q", got, "/tmp/foo.lua")
	}
}

func TestShortSourceFileNameTruncated(t *testing.T) {
	long := "/tmp/" + strings.Repeat("a", 80) + "/file.lua"
	got := ShortSource("@"+long, 60)
	if !strings.HasPrefix(got, "...") {
		t.Errorf("expected truncated filename to start with ..., got %q", got)
	}
	if !strings.HasSuffix(got, long[len(long)-(len(got)-3):]) {
		t.Errorf("expected truncated filename to keep the path tail, got %q", got)
	}
	if len(got) > 60 {
		t.Errorf("ShortSource result exceeds bufflen: len=%d", len(got))
	}
}

func TestShortSourceInlineShort(t *testing.T) {
	got := ShortSource("print('hello')", 60)
	want := `[string "print('hello')"]`
	if got != want {
		t.Errorf("ShortSource inline = %q, want %q", got, want)
	}
}

func TestShortSourceInlineMultiline(t *testing.T) {
	got := ShortSource("local x = 1\nprint(x)", 60)
	want := `[string "local x = 1..."]`
	if got != want {
		t.Errorf("ShortSource multiline = %q, want %q", got, want)
	}
}

func TestShortSourceInlineLongTruncated(t *testing.T) {
	src := strings.Repeat("x", 200)
	got := ShortSource(src, 60)
	if !strings.HasPrefix(got, `[string "`) || !strings.HasSuffix(got, `..."]`) {
		t.Errorf("expected truncated inline wrap, got %q", got)
	}
	if len(got) > 60 {
		t.Errorf("ShortSource result exceeds bufflen: len=%d", len(got))
	}
}
