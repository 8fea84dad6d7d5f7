package common

import (
	"strconv"
	"time"
)

// MetaString looks up the first of keys present in meta.
// An empty value counts as present.
func MetaString(meta map[string]string, keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := meta[key]; ok {
			return value, true
		}
	}
	return "", false
}

// MetaStringOr is MetaString with a fallback
func MetaStringOr(meta map[string]string, fallback string, keys ...string) string {
	if value, ok := MetaString(meta, keys...); ok {
		return value
	}
	return fallback
}

// MetaInt looks up the first of keys holding a valid integer
func MetaInt(meta map[string]string, keys ...string) (int, bool) {
	for _, key := range keys {
		if raw, ok := meta[key]; ok {
			if value, err := strconv.Atoi(raw); err == nil {
				return value, true
			}
		}
	}
	return 0, false
}

// MetaIntOr is MetaInt with a fallback
func MetaIntOr(meta map[string]string, fallback int, keys ...string) int {
	if value, ok := MetaInt(meta, keys...); ok {
		return value
	}
	return fallback
}

// MetaDuration looks up the first of keys holding a Go duration ("90s").
// A bare integer is read as seconds.
func MetaDuration(meta map[string]string, keys ...string) (time.Duration, bool) {
	for _, key := range keys {
		raw, ok := meta[key]
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil {
			return d, true
		}
		if secs, err := strconv.Atoi(raw); err == nil {
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}
