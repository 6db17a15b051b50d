// Package env reads process environment variables with blank-as-unset
// semantics.
package env

import (
	"os"
	"strings"
)

// Read returns the trimmed value of name and whether it is set to a
// non-blank value.
func Read(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

// First returns the first non-blank value among names, in order.
func First(names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := Read(name); ok {
			return v, true
		}
	}
	return "", false
}

// Bool reports whether name is set to 1, true, yes or on (case-insensitive).
// Unset or blank returns def; any other value returns false.
func Bool(name string, def bool) bool {
	v, ok := Read(name)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// List splits a comma-separated variable into its non-blank trimmed items.
func List(name string) []string {
	v, ok := Read(name)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
