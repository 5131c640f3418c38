package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
	"github.com/cargohold-io/cargohold/fs"
)

// Store persists tracked items. Load returns items in the order they were
// saved; Save replaces the full set. The core serializes access to the
// store, so implementations do not need to be concurrency-safe.
type Store interface {
	Load(ctx context.Context) (Items, error)
	Save(ctx context.Context, items Items) error
}

// FileStore persists the catalog as a single JSON document, written
// atomically via a temp file and rename so a crash mid-save never leaves a
// truncated catalog behind.
type FileStore struct {
	fsys fs.Filesystem
	path string
}

// NewFileStore creates a FileStore writing to path on the given filesystem.
func NewFileStore(fsys fs.Filesystem, path string) *FileStore {
	return &FileStore{
		fsys: fsys,
		path: path,
	}
}

// Load reads the catalog document. A missing file is an empty catalog. A
// document that no longer parses is moved aside to a timestamped backup and
// treated as empty rather than failing the run.
func (s *FileStore) Load(_ context.Context) (Items, error) {
	exists, err := s.fsys.Exists(s.path)
	if err != nil {
		return nil, cargoerrors.New("load", fmt.Errorf("%w: %w", cargoerrors.ErrIO, err)).WithPath(s.path)
	}
	if !exists {
		return Items{}, nil
	}

	data, err := s.fsys.ReadFile(s.path)
	if err != nil {
		return nil, cargoerrors.New("load", fmt.Errorf("%w: %w", cargoerrors.ErrIO, err)).WithPath(s.path)
	}

	var items Items
	if err := json.Unmarshal(data, &items); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if renameErr := s.fsys.Rename(s.path, backup); renameErr != nil {
			return nil, cargoerrors.New("load", fmt.Errorf("%w: %w", cargoerrors.ErrIO, renameErr)).WithPath(s.path)
		}
		return Items{}, nil
	}

	return items, nil
}

// Save atomically replaces the catalog document with the given items.
func (s *FileStore) Save(_ context.Context, items Items) error {
	if items == nil {
		items = Items{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return cargoerrors.New("save", err).WithPath(s.path)
	}

	dir := filepath.Dir(s.path)
	if err := s.fsys.MkdirAll(dir, 0o755); err != nil {
		return cargoerrors.New("save", fmt.Errorf("%w: %w", cargoerrors.ErrIO, err)).WithPath(s.path)
	}

	tmp := s.path + ".tmp"
	if err := s.fsys.WriteFile(tmp, data, 0o644); err != nil {
		return cargoerrors.New("save", fmt.Errorf("%w: %w", cargoerrors.ErrIO, err)).WithPath(s.path)
	}
	if err := s.fsys.Rename(tmp, s.path); err != nil {
		return cargoerrors.New("save", fmt.Errorf("%w: %w", cargoerrors.ErrIO, err)).WithPath(s.path)
	}

	return nil
}
