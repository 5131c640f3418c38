package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
)

// readFailure tags errors that came from the source file, so the builder
// can tell a bad source read (discard this container, keep the run going)
// apart from a staging-side write failure (fatal to the run).
type readFailure struct {
	err error
}

func (e *readFailure) Error() string { return e.err.Error() }
func (e *readFailure) Unwrap() error { return e.err }

// taggedReader marks every non-EOF read error as a readFailure.
type taggedReader struct {
	r io.Reader
}

func (t *taggedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &readFailure{err: err}
	}
	return n, err
}

// buildPart compresses one planned container into the staging directory.
// Oversized parts are written without a capacity limit; everything else
// is hard-capped at the ceiling.
func (p *Packer) buildPart(ctx context.Context, pl *partPlan) *buildOutcome {
	outcome := &buildOutcome{index: pl.index}
	path := filepath.Join(p.cfg.StagingDir, pl.name)

	f, err := p.fsys.Create(path)
	if err != nil {
		outcome.fatal = cargoerrors.NewPathError("pack", path,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
		return outcome
	}

	capacity := p.cfg.Ceiling
	if pl.oversized {
		capacity = 0
	}
	sw := NewSizedWriter(f, capacity)
	zw := zip.NewWriter(sw)

	discard := func() {
		_ = f.Close()
		_ = p.fsys.Remove(path)
	}

	for i, entry := range pl.entries {
		if err := ctx.Err(); err != nil {
			discard()
			outcome.fatal = err
			return outcome
		}

		if err := p.addEntry(zw, entry); err != nil {
			discard()

			var rf *readFailure
			switch {
			case errors.As(err, &rf):
				outcome.failed = &FileError{
					Path: entry.relPath,
					Err: cargoerrors.NewPathError("pack", entry.relPath,
						fmt.Errorf("%w: %w", cargoerrors.ErrIO, rf.err)),
				}
				outcome.skipped = companionPaths(pl, i)
			case errors.Is(err, ErrCapacityExceeded):
				outcome.failed = &FileError{
					Path: entry.relPath,
					Err:  cargoerrors.NewPathError("pack", entry.relPath, err),
				}
				outcome.skipped = companionPaths(pl, i)
			default:
				outcome.fatal = cargoerrors.NewPathError("pack", path,
					fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
			}
			return outcome
		}
	}

	if err := zw.Close(); err != nil {
		discard()
		if errors.Is(err, ErrCapacityExceeded) {
			// The trailer did not fit; no single entry to blame.
			outcome.skipped = companionPaths(pl, -1)
			return outcome
		}
		outcome.fatal = cargoerrors.NewPathError("pack", path,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
		return outcome
	}
	if err := f.Close(); err != nil {
		_ = p.fsys.Remove(path)
		outcome.fatal = cargoerrors.NewPathError("pack", path,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
		return outcome
	}

	entries := make([]Entry, len(pl.entries))
	for i, e := range pl.entries {
		entries[i] = Entry{RelPath: e.relPath, Size: e.size}
	}

	outcome.part = &Part{
		Index:     pl.index,
		Name:      pl.name,
		Path:      path,
		Size:      sw.Written(),
		JobID:     p.cfg.JobID,
		Oversized: pl.oversized,
		Entries:   entries,
	}
	return outcome
}

// addEntry streams one source file into the open container.
func (p *Packer) addEntry(zw *zip.Writer, f sourceFile) error {
	src, err := p.fsys.Open(f.absPath)
	if err != nil {
		return &readFailure{err: err}
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return &readFailure{err: err}
	}

	hdr := &zip.FileHeader{
		Name:     f.relPath,
		Method:   zip.Deflate,
		Modified: info.ModTime(),
	}
	hdr.SetMode(info.Mode())

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, &taggedReader{r: src}); err != nil {
		return err
	}
	return nil
}

// companionPaths lists the entries lost with a discarded container,
// excluding the one at failedIdx (-1 keeps them all).
func companionPaths(pl *partPlan, failedIdx int) []string {
	var paths []string
	for i, e := range pl.entries {
		if i == failedIdx {
			continue
		}
		paths = append(paths, e.relPath)
	}
	return paths
}
