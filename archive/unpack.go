package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
	"github.com/cargohold-io/cargohold/fs"
)

// Unpack restores the given part files into destDir, applying them in
// index order. Each contained entry is written to its original relative
// path. The operation is idempotent: entries whose destination already
// holds identical content (same size and checksum) are left untouched, so
// re-running over a previous restore only fills the gaps.
func Unpack(ctx context.Context, fsys fs.Filesystem, parts []string, destDir string) error {
	ordered := make([]string, len(parts))
	copy(ordered, parts)
	sort.Slice(ordered, func(i, j int) bool {
		li, lok := partIndex(ordered[i])
		ri, rok := partIndex(ordered[j])
		if lok && rok && li != ri {
			return li < ri
		}
		return filepath.Base(ordered[i]) < filepath.Base(ordered[j])
	})

	if err := fsys.MkdirAll(destDir, 0o755); err != nil {
		return cargoerrors.NewPathError("unpack", destDir,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}

	for _, part := range ordered {
		if err := unpackPart(ctx, fsys, part, destDir); err != nil {
			return err
		}
	}
	return nil
}

// partIndex extracts the numeric index from a {baseName}_{NNN}.zip name.
func partIndex(path string) (int, bool) {
	base := filepath.Base(path)
	stem, ok := strings.CutSuffix(base, ".zip")
	if !ok {
		return 0, false
	}
	sep := strings.LastIndex(stem, "_")
	if sep < 0 {
		return 0, false
	}
	idx, err := strconv.Atoi(stem[sep+1:])
	if err != nil || idx < 1 {
		return 0, false
	}
	return idx, true
}

func unpackPart(ctx context.Context, fsys fs.Filesystem, part, destDir string) error {
	f, err := fsys.Open(part)
	if err != nil {
		return cargoerrors.NewPathError("unpack", part,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return cargoerrors.NewPathError("unpack", part,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return cargoerrors.NewPathError("unpack", part,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}

	cleanDest := filepath.Clean(destDir)
	for _, entry := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target := filepath.Join(destDir, filepath.FromSlash(entry.Name))
		if !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) && target != cleanDest {
			return cargoerrors.NewPathError("unpack", entry.Name,
				fmt.Errorf("%w: entry path escapes the destination directory", cargoerrors.ErrIO))
		}

		if entry.FileInfo().IsDir() {
			if err := fsys.MkdirAll(target, 0o755); err != nil {
				return cargoerrors.NewPathError("unpack", target,
					fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
			}
			continue
		}

		if matchesExisting(fsys, target, entry) {
			continue
		}
		if err := extractEntry(fsys, entry, target); err != nil {
			return err
		}
	}
	return nil
}

// matchesExisting reports whether the destination already holds the exact
// content of the zip entry, by size and CRC-32.
func matchesExisting(fsys fs.Filesystem, target string, entry *zip.File) bool {
	info, err := fsys.Stat(target)
	if err != nil || info.IsDir() {
		return false
	}
	if uint64(info.Size()) != entry.UncompressedSize64 {
		return false
	}

	f, err := fsys.Open(target)
	if err != nil {
		return false
	}
	defer f.Close()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	return h.Sum32() == entry.CRC32
}

// extractEntry writes one zip entry via a temporary file and an atomic
// rename, so a partial write never shows up under the final name.
func extractEntry(fsys fs.Filesystem, entry *zip.File, target string) error {
	dir := filepath.Dir(target)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return cargoerrors.NewPathError("unpack", dir,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}

	src, err := entry.Open()
	if err != nil {
		return cargoerrors.NewPathError("unpack", entry.Name,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}
	defer src.Close()

	tmp, err := fsys.TempFile(dir, ".unpack-")
	if err != nil {
		return cargoerrors.NewPathError("unpack", dir,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = fsys.Remove(tmpName)
		return cargoerrors.NewPathError("unpack", entry.Name,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName)
		return cargoerrors.NewPathError("unpack", entry.Name,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}

	if err := fsys.Rename(tmpName, target); err != nil {
		_ = fsys.Remove(tmpName)
		return cargoerrors.NewPathError("unpack", target,
			fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}
	return nil
}
