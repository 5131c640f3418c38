package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cargohold-io/cargohold/fs"
)

var (
	// errFileVanished ends a settle wait early when the file stays gone.
	errFileVanished = errors.New("file vanished while settling")

	// errNeverSettled ends a settle wait that ran out its timeout.
	errNeverSettled = errors.New("file did not settle before timeout")
)

// waitStable blocks until path has produced cfg.StabilityChecks consecutive
// identical size/mtime observations and is openable for reading. A file that
// disappears for a full run of checks, or keeps changing past
// cfg.StabilityTimeout, ends the wait with an error.
func waitStable(ctx context.Context, fsys fs.Filesystem, path string, cfg Config) error {
	deadline := time.Now().Add(cfg.StabilityTimeout)
	var (
		lastSize int64 = -1
		lastMod  time.Time
		stable   int
		misses   int
	)
	for {
		info, err := fsys.Stat(path)
		switch {
		case err == nil:
			misses = 0
			if readable(fsys, path) && info.Size() == lastSize && info.ModTime().Equal(lastMod) {
				stable++
			} else {
				stable = 0
			}
			lastSize = info.Size()
			lastMod = info.ModTime()
			if stable >= cfg.StabilityChecks {
				return nil
			}
		case errors.Is(err, os.ErrNotExist):
			// Atomic saves remove and recreate; give the editor a grace
			// window before declaring the file gone.
			misses++
			stable = 0
			if misses >= cfg.StabilityChecks {
				return fmt.Errorf("%w: %s", errFileVanished, path)
			}
		default:
			stable = 0
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", errNeverSettled, path)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.StabilityPoll):
		}
	}
}

// readable reports whether path can be opened for reading right now.
func readable(fsys fs.Filesystem, path string) bool {
	f, err := fsys.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
