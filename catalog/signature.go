package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
	"github.com/cargohold-io/cargohold/fs"
)

// Signature returns a content fingerprint for the file at path, in the form
// "size:mtime:sha256hex". Two files with equal signatures are treated as
// unchanged, so watch mode can skip re-uploading untouched files.
func Signature(fsys fs.Filesystem, path string) (string, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return "", cargoerrors.New("signature", fmt.Errorf("%w: %w", cargoerrors.ErrIO, err)).WithPath(path)
	}

	f, err := fsys.Open(path)
	if err != nil {
		return "", cargoerrors.New("signature", fmt.Errorf("%w: %w", cargoerrors.ErrIO, err)).WithPath(path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", cargoerrors.New("signature", fmt.Errorf("%w: %w", cargoerrors.ErrIO, err)).WithPath(path)
	}

	return fmt.Sprintf("%d:%d:%s", info.Size(), info.ModTime().Unix(), hex.EncodeToString(h.Sum(nil))), nil
}
