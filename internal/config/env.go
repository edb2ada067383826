// Package config reads service settings from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// String returns the trimmed value of k. A variable that is set but empty
// yields "", which is how optional dependencies are switched off.
func String(k, d string) string {
	if v, ok := os.LookupEnv(k); ok {
		return strings.TrimSpace(v)
	}
	return d
}

// Int falls back to d when k is unset, empty or not an integer.
func Int(k string, d int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

// Duration parses Go duration syntax ("10s", "1m30s").
func Duration(k string, d time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			return dur
		}
	}
	return d
}
