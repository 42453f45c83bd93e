package utils

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{
			name:   "disabled preview",
			input:  "Tell me about yourself.",
			limit:  0,
			expect: "",
		},
		{
			name:   "short reply kept whole",
			input:  "[Score: 15/20]",
			limit:  80,
			expect: "[Score: 15/20]",
		},
		{
			name:   "exact length is not marked",
			input:  "Question 2",
			limit:  10,
			expect: "Question 2",
		},
		{
			name:   "long prompt cut",
			input:  "You are conducting a technical interview",
			limit:  11,
			expect: "You are con...",
		},
		{
			name:   "multibyte resume text",
			input:  "Привет мир",
			limit:  6,
			expect: "Привет...",
		},
		{
			name:   "padding ignored",
			input:  "\n  Final Score: 87 \n",
			limit:  100,
			expect: "Final Score: 87",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestTruncateForLogKeepsValidUTF8(t *testing.T) {
	t.Parallel()

	input := strings.Repeat("日本語", 50)
	for limit := 1; limit < 20; limit++ {
		got := TruncateForLog(input, limit)
		if !utf8.ValidString(got) {
			t.Fatalf("limit %d produced invalid utf-8: %q", limit, got)
		}
		if n := utf8.RuneCountInString(strings.TrimSuffix(got, "...")); n != limit {
			t.Fatalf("limit %d kept %d runes", limit, n)
		}
	}
}
