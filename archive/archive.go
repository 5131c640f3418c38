// Package archive packs a source directory into a sequence of size-bounded
// zip parts and restores them. Parts are planned deterministically, built
// in parallel, and emitted strictly in index order so downstream consumers
// can start uploading while later parts are still compressing.
package archive

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
	"github.com/cargohold-io/cargohold/fs"
)

// DefaultCeiling is the maximum byte size of one archive part unless
// configured otherwise.
const DefaultCeiling int64 = 1_900_000_000

// Entry records one source file stored in a part.
type Entry struct {
	// RelPath is the slash-separated path relative to the source
	// directory, as stored in the zip.
	RelPath string

	// Size is the source file size in bytes at planning time.
	Size int64
}

// Part is one sealed archive container. Parts are immutable once emitted.
type Part struct {
	// Index is the 1-based sequence number within the packing run.
	Index int

	// Name is the file name, {baseName}_{NNN}.zip.
	Name string

	// Path is the absolute staging path of the sealed container.
	Path string

	// Size is the container size in bytes.
	Size int64

	// JobID identifies the packing run that produced this part.
	JobID string

	// Oversized marks a part holding a single file whose own size exceeds
	// the ceiling. Such parts violate the nominal ceiling on purpose;
	// splitting file bytes across parts is not supported.
	Oversized bool

	// Entries lists the source files stored in this part.
	Entries []Entry
}

// FileError records a per-file failure that did not stop the run.
type FileError struct {
	// Path is the source path, relative to the source directory.
	Path string

	// Err is the classified failure.
	Err error
}

// Report summarizes a packing run.
type Report struct {
	// Parts are the sealed containers, in index order.
	Parts []Part

	// Failed lists files whose read failed; each one cost its container.
	Failed []FileError

	// Skipped lists files that were planned into a discarded container
	// and therefore remain unarchived this run.
	Skipped []string

	// TotalBytes is the sum of the sealed container sizes.
	TotalBytes int64
}

// Config controls a packing run.
type Config struct {
	// SourceDir is the directory to pack.
	SourceDir string

	// StagingDir receives the sealed part files.
	StagingDir string

	// BaseName is the part file name stem.
	BaseName string

	// Ceiling is the per-part size limit in bytes. Non-positive means
	// DefaultCeiling.
	Ceiling int64

	// Workers bounds how many containers compress concurrently.
	// Non-positive means the available parallelism.
	Workers int

	// JobID tags the run. Empty means a fresh generated id.
	JobID string
}

// Packer turns a source directory into sealed parts.
type Packer struct {
	fsys fs.Filesystem
	cfg  Config
}

// NewPacker creates a Packer over the given filesystem. Defaults are
// applied for ceiling, workers, and job id.
func NewPacker(fsys fs.Filesystem, cfg Config) *Packer {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.JobID == "" {
		cfg.JobID = NewJobID()
	}
	return &Packer{fsys: fsys, cfg: cfg}
}

// NewJobID returns a fresh packing run identifier: a UTC timestamp plus a
// short random suffix, usable as a staging directory name.
func NewJobID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return time.Now().UTC().Format("20060102T150405") + "_" + suffix
}

// PartName returns the container file name for the given stem and index.
func PartName(baseName string, index int) string {
	return fmt.Sprintf("%s_%03d.zip", baseName, index)
}

// buildOutcome is what one worker hands back for one planned part.
type buildOutcome struct {
	index   int
	part    *Part      // sealed part, nil when the container was discarded
	failed  *FileError // the file whose read sank the container
	skipped []string   // companions lost with the discarded container
	fatal   error      // unrecoverable, aborts the whole run
}

// Pack walks the source directory, groups files into size-bounded parts,
// builds the containers in parallel, and calls emit for each sealed part
// in strictly increasing index order as soon as it and all its
// predecessors are done. A read failure on one source file discards only
// the container being built; running out of space in the staging area
// aborts the run.
func (p *Packer) Pack(ctx context.Context, emit func(Part)) (*Report, error) {
	files, err := p.scan(ctx)
	if err != nil {
		return nil, err
	}

	plans := p.plan(files)
	report := &Report{}
	if len(plans) == 0 {
		return report, nil
	}

	if err := p.fsys.MkdirAll(p.cfg.StagingDir, 0o755); err != nil {
		return nil, cargoerrors.NewPathError("pack", p.cfg.StagingDir,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan *buildOutcome, len(plans))
	sem := make(chan struct{}, p.cfg.Workers)

	go func() {
		var wg sync.WaitGroup
		for _, pl := range plans {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes <- &buildOutcome{index: pl.index, fatal: ctx.Err()}
				continue
			}

			wg.Add(1)
			go func(pl *partPlan) {
				defer func() {
					<-sem
					wg.Done()
				}()
				outcomes <- p.buildPart(ctx, pl)
			}(pl)
		}
		wg.Wait()
		close(outcomes)
	}()

	// Collect results and release parts in index order.
	pending := make(map[int]*buildOutcome, len(plans))
	next := plans[0].index
	var fatal error

	for outcome := range outcomes {
		pending[outcome.index] = outcome

		for done, ok := pending[next]; ok; done, ok = pending[next] {
			delete(pending, next)
			next++

			switch {
			case done.fatal != nil:
				if fatal == nil && !isCancellation(done.fatal) {
					fatal = done.fatal
					cancel()
				}
			case done.part != nil:
				if fatal == nil {
					report.Parts = append(report.Parts, *done.part)
					report.TotalBytes += done.part.Size
					if emit != nil {
						emit(*done.part)
					}
				}
			default:
				if done.failed != nil {
					report.Failed = append(report.Failed, *done.failed)
				}
				report.Skipped = append(report.Skipped, done.skipped...)
			}
		}
	}

	if fatal != nil {
		return report, fatal
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
