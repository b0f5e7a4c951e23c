package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"removes extra spaces", "hello    world", "hello world"},
		{"removes tabs", "hello\t\tworld", "hello world"},
		{"removes newlines", "hello\n\nworld", "hello world"},
		{"trims leading/trailing", "  hello world  ", "hello world"},
		{"handles mixed whitespace", "  hello  \t\n  world  ", "hello world"},
		{"handles empty string", "", ""},
		{"handles single space", " ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanText(tt.input))
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{"parses positive number", "123", 123},
		{"parses negative number", "-456", -456},
		{"parses with whitespace", "  789  ", 789},
		{"returns 0 for invalid", "abc", 0},
		{"returns 0 for empty", "", 0},
		{"returns 0 for decimal", "12.34", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseInt(tt.input))
		})
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "hello", TruncateString("hello", 10))
	assert.Equal(t, "hel...", TruncateString("hello world", 6))
	assert.Equal(t, "he", TruncateString("hello", 2))
}
