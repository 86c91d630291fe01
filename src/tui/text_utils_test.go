package tui

import (
	"testing"
)

func TestTruncate_ShortText(t *testing.T) {
	result := Truncate("hello", 20, true)

	if result != "hello" {
		t.Errorf("expected 'hello', got '%s'", result)
	}
}

func TestTruncate_WithEllipsis(t *testing.T) {
	result := Truncate("hello world this is long", 10, true)

	if result != "hello w..." {
		t.Errorf("expected 'hello w...', got '%s'", result)
	}
	if VisualWidth(result) > 10 {
		t.Errorf("truncated text exceeds width: %d", VisualWidth(result))
	}
}

func TestTruncate_WithoutEllipsis(t *testing.T) {
	result := Truncate("hello world", 5, false)

	if result != "hello" {
		t.Errorf("expected 'hello', got '%s'", result)
	}
}

func TestTruncateAndPad_PadsToWidth(t *testing.T) {
	result := TruncateAndPad("abc", 8, false)

	if result != "abc     " {
		t.Errorf("expected 'abc     ', got '%s'", result)
	}
	if VisualWidth(result) != 8 {
		t.Errorf("expected width 8, got %d", VisualWidth(result))
	}
}

func TestCleanLogText_StripsColorCodes(t *testing.T) {
	input := "\x1b[31mFAILED\x1b[0m tests/unit"
	result := CleanLogText(input)

	if result != "FAILED tests/unit" {
		t.Errorf("expected 'FAILED tests/unit', got '%s'", result)
	}
}

func TestCleanLogText_PlainTextUnchanged(t *testing.T) {
	input := "2025-01-01 12:00:00 [INFO] stage complete"
	result := CleanLogText(input)

	if result != input {
		t.Errorf("expected input unchanged, got '%s'", result)
	}
}

func TestTailLines_ReturnsLastLines(t *testing.T) {
	text := "one\ntwo\nthree\nfour\n"
	lines := TailLines(text, 2)

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "three" || lines[1] != "four" {
		t.Errorf("expected [three four], got %v", lines)
	}
}

func TestTailLines_ShortText(t *testing.T) {
	lines := TailLines("only", 10)

	if len(lines) != 1 || lines[0] != "only" {
		t.Errorf("expected [only], got %v", lines)
	}
}

func TestTailLines_EmptyText(t *testing.T) {
	lines := TailLines("", 10)

	if len(lines) != 0 {
		t.Errorf("expected no lines, got %v", lines)
	}
}
