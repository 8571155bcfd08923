package util

import "testing"

func TestShellQuote(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", "'simple'"},
		{"with space", "'with space'"},
		{"with'quote", "'with'\\''quote'"},
		{"", "''"},
		{"$variable", "'$variable'"},
		{"`backtick`", "'`backtick`'"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ShellQuote(tt.input)
			if got != tt.expected {
				t.Errorf("ShellQuote(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEscapeDoubleQuotes(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`echo hi`, `echo hi`},
		{`echo "hi"`, `echo \"hi\"`},
		{`grep "a b" file`, `grep \"a b\" file`},
		{``, ``},
		{`already \" escaped`, `already \\" escaped`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := EscapeDoubleQuotes(tt.input)
			if got != tt.expected {
				t.Errorf("EscapeDoubleQuotes(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestJoinOrDefault(t *testing.T) {
	if got := JoinOrDefault(nil, "(none)"); got != "(none)" {
		t.Errorf("JoinOrDefault(nil) = %q, want %q", got, "(none)")
	}
	if got := JoinOrDefault([]string{"a", "b"}, "(none)"); got != "a, b" {
		t.Errorf("JoinOrDefault = %q, want %q", got, "a, b")
	}
}
