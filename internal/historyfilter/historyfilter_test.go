package historyfilter

import "testing"

func filter(t *testing.T, input string) string {
	t.Helper()
	f := New()
	out := f.FilterBytes([]byte(input))
	out = append(out, f.Flush()...)
	return string(out)
}

func TestPlainTextPasses(t *testing.T) {
	if got := filter(t, "hello world"); got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestSGRWhitelisted(t *testing.T) {
	in := "\x1b[31mred\x1b[0m"
	if got := filter(t, in); got != in {
		t.Fatalf("got %q, want %q", got, in)
	}
}

func TestCursorMovementWhitelisted(t *testing.T) {
	in := "\x1b[2;5Hmoved"
	if got := filter(t, in); got != in {
		t.Fatalf("got %q, want %q", got, in)
	}
}

func TestFocusTrackingBlacklisted(t *testing.T) {
	in := "\x1b[?1004hfocus"
	if got := filter(t, in); got != "focus" {
		t.Fatalf("got %q", got)
	}
}

func TestMouseModeBlacklisted(t *testing.T) {
	in := "\x1b[?1000hmouse"
	if got := filter(t, in); got != "mouse" {
		t.Fatalf("got %q", got)
	}
}

func TestBracketedPasteModeBlacklisted(t *testing.T) {
	in := "\x1b[?2004hpaste"
	if got := filter(t, in); got != "paste" {
		t.Fatalf("got %q", got)
	}
}

func TestDeviceAttributesQueryBlacklisted(t *testing.T) {
	in := "before\x1b[cafter"
	if got := filter(t, in); got != "beforeafter" {
		t.Fatalf("got %q", got)
	}
}

func TestOSCTitlePasses(t *testing.T) {
	in := "\x1b]0;my title\x07"
	if got := filter(t, in); got != in {
		t.Fatalf("got %q, want %q", got, in)
	}
}

func TestOSCQueryBlacklisted(t *testing.T) {
	in := "before\x1b]10;?\x07after"
	if got := filter(t, in); got != "beforeafter" {
		t.Fatalf("got %q", got)
	}
}

func TestOSCWorkingDirectoryBlacklisted(t *testing.T) {
	in := "before\x1b]7;file:///home\x07after"
	if got := filter(t, in); got != "beforeafter" {
		t.Fatalf("got %q", got)
	}
}

func TestMixedContent(t *testing.T) {
	in := "plain \x1b[1mbold\x1b[0m \x1b[?1000htext"
	want := "plain \x1b[1mbold\x1b[0m text"
	if got := filter(t, in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestClipboardSetWhitelisted(t *testing.T) {
	in := "\x1b]52;c;aGVsbG8=\x07"
	if got := filter(t, in); got != in {
		t.Fatalf("got %q, want %q", got, in)
	}
}

func TestClipboardQueryBlacklisted(t *testing.T) {
	in := "before\x1b]52;c;?\x07after"
	if got := filter(t, in); got != "beforeafter" {
		t.Fatalf("got %q", got)
	}
}

func TestENQBlacklisted(t *testing.T) {
	if got := filter(t, "before\x05after"); got != "beforeafter" {
		t.Fatalf("got %q", got)
	}
}

func TestWhitelistedControlCodesPass(t *testing.T) {
	in := "a\tb\rc\nd\x07e"
	if got := filter(t, in); got != in {
		t.Fatalf("got %q, want %q", got, in)
	}
}

func TestBlacklistedC0ControlsDropped(t *testing.T) {
	// SOH, DLE, CAN: all outside the whitelist set.
	if got := filter(t, "a\x01b\x10c\x18d"); got != "abcd" {
		t.Fatalf("got %q", got)
	}
}

func TestRawC1ControlDropped(t *testing.T) {
	// A stray 8-bit NEL (0x85) outside any UTF-8 character.
	if got := filter(t, "one\x85two"); got != "onetwo" {
		t.Fatalf("got %q", got)
	}
}

func TestMultiByteUTF8Passes(t *testing.T) {
	// é (0xC3 0xA9) and a 3-byte CJK character; continuation bytes in
	// the 0x80-0x9F range must not be mistaken for C1 controls.
	in := "caf\xc3\xa9 \xe6\x97\xa5"
	if got := filter(t, in); got != in {
		t.Fatalf("got %q, want %q", got, in)
	}
}

func TestDCSAlwaysBlacklisted(t *testing.T) {
	in := "before\x1bPdata\x1b\\after"
	if got := filter(t, in); got != "beforeafter" {
		t.Fatalf("got %q", got)
	}
}
