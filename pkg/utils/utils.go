// Package utils provides small shared helpers.
package utils

import "os"

// GetEnvWithDefault retrieves an environment variable or returns a
// default value if not set.
func GetEnvWithDefault(name, defaultValue string) string {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	return value
}

// MaskToken masks most of a secret for safe logging, showing only the
// first and last few characters. Used for transaction signatures and API
// keys in log output.
func MaskToken(token string) string {
	if len(token) < 10 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
