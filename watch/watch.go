// Package watch observes a source tree for file changes and hands stable,
// non-transient files to a callback. Bursty editor saves are coalesced with a
// per-path debounce, and a file is only reported once its size and mtime have
// stopped moving, so partially written files are never shipped.
package watch

import (
	"path/filepath"
	"strings"
	"time"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultDebounce         = time.Second
	DefaultStabilityPoll    = 500 * time.Millisecond
	DefaultStabilityChecks  = 3
	DefaultStabilityTimeout = 2 * time.Minute
)

// defaultIgnoreSuffixes marks in-progress artifacts from browsers and
// download tools. Files carrying these suffixes are still being produced.
var defaultIgnoreSuffixes = []string{".tmp", ".crdownload", ".part", ".partial"}

// Config controls debounce and stability behavior for a Watcher.
type Config struct {
	// Debounce is how long a path must stay quiet before its change is
	// processed. Repeated events within the window reset it.
	Debounce time.Duration

	// StabilityPoll is the interval between size/mtime observations while
	// waiting for a changed file to settle.
	StabilityPoll time.Duration

	// StabilityChecks is how many consecutive identical observations are
	// required before a file counts as settled.
	StabilityChecks int

	// StabilityTimeout bounds the total settle wait for one file. A file
	// still moving when it expires is skipped with a warning.
	StabilityTimeout time.Duration

	// IgnoreSuffixes extends the built-in in-progress suffix list.
	// Matching is case-insensitive.
	IgnoreSuffixes []string
}

// withDefaults fills zero fields with package defaults.
func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.StabilityPoll <= 0 {
		c.StabilityPoll = DefaultStabilityPoll
	}
	if c.StabilityChecks <= 0 {
		c.StabilityChecks = DefaultStabilityChecks
	}
	if c.StabilityTimeout <= 0 {
		c.StabilityTimeout = DefaultStabilityTimeout
	}
	return c
}

// Ignored reports whether path names a file the watcher should not track:
// hidden files, editor lock files ("~" prefix), and in-progress artifacts by
// suffix (the built-in list plus Config.IgnoreSuffixes).
func (c Config) Ignored(path string) bool {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return false
	}
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return true
	}
	lower := strings.ToLower(base)
	for _, suffix := range defaultIgnoreSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	for _, suffix := range c.IgnoreSuffixes {
		if suffix == "" {
			continue
		}
		if strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}
