package steps

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Args are the string arguments of one configured step.
type Args map[string]string

// Required returns the value of key or an error if it is empty.
func (a Args) Required(key string) (string, error) {
	v := a[key]
	if v == "" {
		return "", fmt.Errorf("argument %q is required", key)
	}
	return v, nil
}

// Duration parses key as a duration, returning def when unset.
func (a Args) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := a[key]
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("argument %q: %w", key, err)
	}
	return d, nil
}

// Bool parses key as a boolean, returning false when unset.
func (a Args) Bool(key string) (bool, error) {
	v, ok := a[key]
	if !ok || v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("argument %q: %w", key, err)
	}
	return b, nil
}

// Level parses key as a log level, returning info when unset.
func (a Args) Level(key string) (slog.Level, error) {
	var level slog.Level
	v := a[key]
	if v == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
		return 0, fmt.Errorf("argument %q: %w", key, err)
	}
	return level, nil
}
