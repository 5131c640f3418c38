package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
)

// Per-entry planning margin: zip local and central headers, descriptors,
// possible zip64 extras, plus the worst-case deflate expansion of
// incompressible input (5 bytes per 16 KiB block). The margin keeps the
// planner's estimates above what the builder can actually write.
const (
	entryOverhead     = 256
	containerOverhead = 1024
)

// sourceFile is one file discovered under the source directory.
type sourceFile struct {
	relPath string // slash-separated, relative to SourceDir
	absPath string
	size    int64
}

// partPlan groups source files into one future container.
type partPlan struct {
	index     int
	name      string
	entries   []sourceFile
	estimated int64
	oversized bool
}

// estimateEntrySize is the conservative contribution of one file to its
// container's size.
func estimateEntrySize(f sourceFile) int64 {
	return f.size + f.size/1000 + entryOverhead + 2*int64(len(f.relPath))
}

// scan enumerates the regular files under SourceDir, sorted
// lexicographically by relative path so planning is reproducible across
// runs given identical input.
func (p *Packer) scan(ctx context.Context) ([]sourceFile, error) {
	var files []sourceFile

	err := p.fsys.Walk(p.cfg.SourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(p.cfg.SourceDir, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}

		files = append(files, sourceFile{
			relPath: filepath.ToSlash(relPath),
			absPath: path,
			size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		return nil, cargoerrors.NewPathError("scan", p.cfg.SourceDir,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].relPath < files[j].relPath
	})
	return files, nil
}

// plan groups the scanned files greedily into parts. A file whose
// estimated contribution would push the open part past the ceiling seals
// that part, as long as it holds at least one entry. A file whose own
// size exceeds the ceiling is planned alone as an oversized part.
func (p *Packer) plan(files []sourceFile) []*partPlan {
	var plans []*partPlan
	index := 1

	current := &partPlan{index: index, estimated: containerOverhead}

	seal := func() {
		if len(current.entries) == 0 {
			return
		}
		current.name = PartName(p.cfg.BaseName, current.index)
		plans = append(plans, current)
		index++
		current = &partPlan{index: index, estimated: containerOverhead}
	}

	for _, f := range files {
		if f.size > p.cfg.Ceiling {
			seal()
			current.entries = append(current.entries, f)
			current.estimated += estimateEntrySize(f)
			current.oversized = true
			seal()
			continue
		}

		est := estimateEntrySize(f)
		if current.estimated+est > p.cfg.Ceiling && len(current.entries) > 0 {
			seal()
		}
		current.entries = append(current.entries, f)
		current.estimated += est
	}
	seal()

	return plans
}
