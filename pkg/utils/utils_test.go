package utils

import "testing"

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("UTILS_TEST_VAR", "set-value")
	if got := GetEnvWithDefault("UTILS_TEST_VAR", "fallback"); got != "set-value" {
		t.Errorf("Expected set-value, got %q", got)
	}
	if got := GetEnvWithDefault("UTILS_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %q", got)
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"long token", "5KJvsngHeMpm884wtkJNzPXKbkAdGt6DbJwf4vR2UNEV", "5KJv...UNEV"},
		{"short token", "abc", "***"},
		{"empty token", "", "***"},
		{"boundary length", "123456789", "***"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskToken(tt.token); got != tt.want {
				t.Errorf("MaskToken(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}
