package util

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long string truncated", "hello world", 8, "hello..."},
		{"tiny max collapses to ellipsis", "hello", 3, "..."},
		{"zero max collapses to ellipsis", "hello", 0, "..."},
		{"empty string unchanged", "", 10, ""},
		{"wide runes counted as runes", "日本語テスト", 5, "日本..."},
		{"mixed ascii and wide runes", "hello日本語world", 10, "hello日本..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestTruncateANSI(t *testing.T) {
	styled := lipgloss.NewStyle().Bold(true).Render("hello world")

	tests := []struct {
		name     string
		input    string
		maxWidth int
	}{
		{"plain string", "hello world", 8},
		{"styled string", styled, 8},
		{"wide characters", "日本語テスト", 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateANSI(tt.input, tt.maxWidth)
			if w := lipgloss.Width(got); w > tt.maxWidth {
				t.Errorf("TruncateANSI(%q, %d) rendered width %d", tt.input, tt.maxWidth, w)
			}
		})
	}

	if got := TruncateANSI("hi", 10); got != "hi" {
		t.Errorf("TruncateANSI left short string modified: %q", got)
	}
	if got := TruncateANSI("hello", 2); got != "..." {
		t.Errorf("TruncateANSI(2) = %q, want ellipsis", got)
	}
}
