package transfer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cargohold-io/cargohold/catalog"
	cargoerrors "github.com/cargohold-io/cargohold/errors"
)

// Reconcile repairs catalog state after an unclean shutdown. Items stuck
// in a mid-flight status return to pending, and items recorded as
// uploaded are verified against the backend; objects that went missing
// remotely go back to pending so the next run re-uploads them. Returns
// the number of items changed.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	if err := o.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	o.mu.Lock()
	snapshot := make(catalog.Items, len(o.items))
	copy(snapshot, o.items)
	o.mu.Unlock()

	changed := 0
	now := time.Now().UTC()
	// Many items can share one remote object (files packed into the same
	// part), so verification results are memoized per object.
	verified := make(map[string]error)

	for i := range snapshot {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		item := &snapshot[i]
		switch item.Status {
		case catalog.StatusArchiving, catalog.StatusQueued, catalog.StatusUploading:
			item.Status = catalog.StatusPending
			item.UpdatedAt = now
			changed++
			o.log.Debug("stale in-flight item returned to pending", zap.String("path", item.Path))

		case catalog.StatusUploaded:
			if item.Remote == nil {
				item.Status = catalog.StatusPending
				item.UpdatedAt = now
				changed++
				continue
			}
			adapter, ok := o.adapters[item.Remote.Backend]
			if !ok {
				continue
			}
			objKey := item.Remote.Bucket + "/" + item.Remote.Key
			herr, seen := verified[objKey]
			if !seen {
				_, herr = adapter.Head(ctx, *item.Remote)
				verified[objKey] = herr
			}
			switch {
			case herr == nil:
			case cargoerrors.IsNotFound(herr):
				item.Status = catalog.StatusPending
				item.Remote = nil
				item.UpdatedAt = now
				changed++
				o.log.Warn("uploaded item missing remotely, returning to pending",
					zap.String("path", item.Path),
					zap.String("key", objKey))
			default:
				o.log.Warn("could not verify remote object",
					zap.String("path", item.Path),
					zap.String("key", objKey),
					zap.Error(herr))
			}
		}
	}

	o.mu.Lock()
	o.items = snapshot
	o.mu.Unlock()

	if changed > 0 {
		o.persist(ctx)
		o.log.Info("catalog reconciled", zap.Int("changed", changed))
	}
	return changed, nil
}
