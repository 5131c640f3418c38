package transfer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cargohold-io/cargohold/backend"
	cargoerrors "github.com/cargohold-io/cargohold/errors"
)

// runDownload fetches the unit's remote object into a temporary file
// next to the destination, verifies the byte count, and renames it into
// place. A count mismatch discards the partial file and counts as a
// retryable integrity failure; the destination is never left holding a
// partial object.
func (o *Orchestrator) runDownload(ctx context.Context, unit *Unit) (*backend.RemoteRef, int, error) {
	if unit.Ref == nil {
		return nil, 0, cargoerrors.NewPathError("download", unit.Path, errors.New("unit has no remote reference"))
	}
	ref := *unit.Ref
	adapter, ok := o.adapters[ref.Backend]
	if !ok {
		return nil, 0, cargoerrors.New("download", fmt.Errorf("no adapter configured for backend %q", ref.Backend))
	}

	dir := filepath.Dir(unit.Path)
	if err := o.fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, 0, cargoerrors.NewPathError("download", unit.Path, fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}

	expected := unit.Size
	if expected <= 0 {
		expected = ref.Size
	}

	o.log.Debug("download starting",
		zap.String("unit", unit.ID),
		zap.String("path", unit.Path),
		zap.String("key", ref.Key),
		zap.Int64("size", expected))

	tracker := o.trackerFor(unit)
	attempts, err := runWithRetry(ctx, o.retry, func(runCtx context.Context) error {
		attemptCtx, cancel := o.attemptContext(runCtx)
		defer cancel()
		return o.downloadOnce(attemptCtx, adapter, ref, unit.Path, dir, expected, tracker)
	}, o.retryNotify(unit))
	if err != nil {
		return nil, attempts, err
	}
	return unit.Ref, attempts, nil
}

// downloadOnce performs a single fetch attempt into a fresh temp file.
func (o *Orchestrator) downloadOnce(ctx context.Context, adapter backend.Adapter, ref backend.RemoteRef, dest, dir string, expected int64, tracker backend.Tracker) error {
	tmp, err := o.fsys.TempFile(dir, ".cargohold-")
	if err != nil {
		return cargoerrors.NewPathError("download", dest, fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}
	tmpName := tmp.Name()

	written, err := adapter.Get(ctx, ref, tmp, backend.WithTracker(tracker))
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cargoerrors.NewPathError("download", dest, fmt.Errorf("%w: closing temp file: %w", cargoerrors.ErrIO, cerr))
	}
	if err != nil {
		_ = o.fsys.Remove(tmpName)
		return err
	}

	if expected > 0 && written != expected {
		_ = o.fsys.Remove(tmpName)
		return cargoerrors.NewPathError("download", dest,
			fmt.Errorf("%w: got %d bytes, want %d", cargoerrors.ErrIntegrity, written, expected))
	}

	if err := o.fsys.Rename(tmpName, dest); err != nil {
		_ = o.fsys.Remove(tmpName)
		return cargoerrors.NewPathError("download", dest, fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
	}
	return nil
}
