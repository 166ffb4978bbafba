package config

import (
	"testing"
)

func TestResolveURLForDocker_NotInDocker(t *testing.T) {
	tests := []string{
		"http://localhost:11434/v1",
		"https://api.openai.com/v1",
		"",
	}

	for _, input := range tests {
		if got := resolveURLForDocker(input, false); got != input {
			t.Errorf("resolveURLForDocker(%q, false) = %q, want unchanged", input, got)
		}
	}
}

func TestResolveURLForDocker_InDocker(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"http://localhost:11434/v1", "http://host.docker.internal:11434/v1"},
		{"http://127.0.0.1/v1", "http://host.docker.internal/v1"},
		{"https://api.openai.com/v1", "https://api.openai.com/v1"},
		{"http://host.docker.internal:8000", "http://host.docker.internal:8000"},
	}

	for _, tt := range tests {
		if got := resolveURLForDocker(tt.input, true); got != tt.expected {
			t.Errorf("resolveURLForDocker(%q, true) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
