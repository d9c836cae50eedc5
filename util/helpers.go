// Package util - small helpers for env handling and cache keys.
package util

import (
	"os"
	"regexp"
	"strings"
)

// GetEnvDefault is a convenience function for handling env vars
func GetEnvDefault(key, defVal string) string {
	val, ex := os.LookupEnv(key) // get the env var
	if !ex {                     // not found return default
		return defVal
	}
	return val // return value for env var
}

// IsEmpty checks if a string is empty or contains only whitespace
func IsEmpty(s string) bool {
	return len(strings.TrimSpace(s)) == 0
}

// IsNotEmpty checks if a string is not empty
func IsNotEmpty(s string) bool {
	return !IsEmpty(s)
}

// FileExists checks if a file exists
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// Contains checks if a string slice contains an item
func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeKey turns an arbitrary cache key into a safe file name by
// replacing every character outside [a-zA-Z0-9.-] with a dash.
func SanitizeKey(key string) string {
	return unsafeKeyChars.ReplaceAllString(key, "-")
}

// UniqueStrings removes duplicates while preserving first-seen order.
func UniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		result = append(result, v)
	}
	return result
}
