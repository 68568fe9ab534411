package app

import (
	"log/slog"
	"testing"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "plain text", want: "plain text"},
		{in: ansiRed + "[ERROR]" + ansiReset, want: "[ERROR]"},
		{in: ansiDim + "12:34:56" + ansiReset + " ok", want: "12:34:56 ok"},
	}

	for _, tc := range cases {
		if got := stripANSI(tc.in); got != tc.want {
			t.Fatalf("stripANSI(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestLevelTag(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level slog.Level
		want  string
	}{
		{level: slog.LevelDebug, want: "[DEBUG]"},
		{level: slog.LevelInfo, want: "[INFO]"},
		{level: slog.LevelWarn, want: "[WARN]"},
		{level: slog.LevelError, want: "[ERROR]"},
	}

	for _, tc := range cases {
		if got := levelTag(tc.level, false); got != tc.want {
			t.Fatalf("levelTag(%v)=%q want=%q", tc.level, got, tc.want)
		}
		colored := levelTag(tc.level, true)
		if stripANSI(colored) != tc.want {
			t.Fatalf("colored levelTag(%v) strips to %q want=%q", tc.level, stripANSI(colored), tc.want)
		}
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: `""`},
		{in: "bare", want: "bare"},
		{in: "two words", want: `"two words"`},
		{in: `a"b`, want: `"a\"b"`},
	}

	for _, tc := range cases {
		if got := quoteIfNeeded(tc.in); got != tc.want {
			t.Fatalf("quoteIfNeeded(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}
