package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cargohold-io/cargohold/backend"
	"github.com/cargohold-io/cargohold/catalog"
	cargoerrors "github.com/cargohold-io/cargohold/errors"
	"github.com/cargohold-io/cargohold/fs"
)

// Defaults for the orchestrator knobs. All are overridable through options.
const (
	// DefaultWorkers is the number of concurrent transfer workers.
	DefaultWorkers = 3

	// DefaultRetryBudget is how many retries a unit gets after its first
	// failed attempt.
	DefaultRetryBudget = 3

	// DefaultRetryBase is the initial backoff interval.
	DefaultRetryBase = 500 * time.Millisecond

	// DefaultRetryMaxWait caps a single backoff interval.
	DefaultRetryMaxWait = 30 * time.Second
)

// Orchestrator owns the transfer pipeline: a queue of units, a worker
// pool that drains it, backend selection per unit, bounded retries, and
// catalog persistence after every terminal transition.
type Orchestrator struct {
	fsys     fs.Filesystem
	adapters map[backend.Kind]backend.Adapter
	policy   backend.Policy
	store    catalog.Store
	reporter Reporter
	resultFn func(Result)
	log      *zap.Logger

	workers        int
	retry          retryPolicy
	attemptTimeout time.Duration
	throttle       time.Duration

	queue *queue
	locks *pathLocks

	mu      sync.Mutex
	items   catalog.Items
	loaded  bool
	paused  bool
	resumed chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore sets the catalog store consulted on startup and written
// after every terminal transition. Without a store the orchestrator
// keeps state in memory only.
func WithStore(s catalog.Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithReporter sets the progress event consumer.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) {
		o.reporter = r
	}
}

// WithResultFunc sets a callback invoked with every terminal result.
func WithResultFunc(fn func(Result)) Option {
	return func(o *Orchestrator) {
		o.resultFn = fn
	}
}

// WithPolicy sets the backend selection policy.
func WithPolicy(p backend.Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		o.workers = n
	}
}

// WithRetry sets the retry budget and the initial backoff interval.
func WithRetry(budget int, base time.Duration) Option {
	return func(o *Orchestrator) {
		if budget >= 0 {
			o.retry.budget = budget
		}
		if base > 0 {
			o.retry.base = base
		}
	}
}

// WithAttemptTimeout bounds each individual transfer attempt. A fired
// timeout counts as a transient failure and stays retry-eligible.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.attemptTimeout = d
	}
}

// WithThrottle inserts a fixed delay after each unit a worker finishes.
func WithThrottle(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.throttle = d
	}
}

// New creates an Orchestrator moving units through the given adapters.
func New(fsys fs.Filesystem, adapters map[backend.Kind]backend.Adapter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fsys:     fsys,
		adapters: adapters,
		policy:   backend.DefaultPolicy(),
		log:      zap.NewNop(),
		workers:  DefaultWorkers,
		retry:    defaultRetryPolicy(),
		queue:    newQueue(),
		locks:    newPathLocks(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return o
}

// Schedule enqueues a unit. Upload units have their catalog entries
// marked queued. Fails once Close has been called.
func (o *Orchestrator) Schedule(ctx context.Context, unit Unit) error {
	if err := o.ensureLoaded(ctx); err != nil {
		return err
	}
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	if unit.Direction == "" {
		unit.Direction = DirectionUpload
	}
	if unit.Direction == DirectionUpload {
		o.transition(&unit, catalog.StatusQueued, nil)
	}
	if !o.queue.push(&unit) {
		if unit.Direction == DirectionUpload {
			o.transition(&unit, catalog.StatusPending, nil)
		}
		return cargoerrors.New("schedule", errors.New("orchestrator is closed"))
	}
	o.log.Debug("unit scheduled",
		zap.String("unit", unit.ID),
		zap.String("path", unit.Path),
		zap.String("direction", string(unit.Direction)),
		zap.Int64("size", unit.Size))
	return nil
}

// Close marks the input complete: Run returns once everything already
// queued has been processed, and further Schedule calls fail.
func (o *Orchestrator) Close() {
	o.queue.close()
}

// Pause stops workers from starting new units. In-flight transfers run
// to completion.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.paused {
		return
	}
	o.paused = true
	o.resumed = make(chan struct{})
}

// Resume lifts a Pause.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.paused {
		return
	}
	o.paused = false
	close(o.resumed)
}

// Run drains the queue with the configured worker pool, blocking until
// the queue is closed and empty or ctx is cancelled. On cancellation,
// in-flight units abort at their next chunk boundary and units that
// never started return to pending; neither is recorded as failed.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.ensureLoaded(ctx); err != nil {
		return err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			o.queue.wake()
		case <-stop:
		}
	}()

	o.log.Info("transfer run started", zap.Int("workers", o.workers))

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.workerLoop(ctx)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		o.requeueUnstarted()
		o.persist(context.Background())
		o.log.Info("transfer run cancelled")
		return err
	}
	o.log.Info("transfer run complete")
	return nil
}

// Stats returns the number of catalog items per status.
func (o *Orchestrator) Stats(ctx context.Context) (map[catalog.Status]int, error) {
	if err := o.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.items.CountByStatus(), nil
}

// Snapshot returns a copy of the tracked catalog items.
func (o *Orchestrator) Snapshot(ctx context.Context) (catalog.Items, error) {
	if err := o.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	snapshot := make(catalog.Items, len(o.items))
	copy(snapshot, o.items)
	return snapshot, nil
}

func (o *Orchestrator) workerLoop(ctx context.Context) {
	for {
		unit, ok := o.queue.pop(ctx)
		if !ok {
			return
		}
		o.handleUnit(ctx, unit)
		if o.throttle > 0 {
			select {
			case <-time.After(o.throttle):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (o *Orchestrator) handleUnit(ctx context.Context, unit *Unit) {
	if err := o.awaitResume(ctx); err != nil {
		o.finishCancelled(unit, err, 0)
		return
	}
	if err := o.locks.Acquire(ctx, unit.Path); err != nil {
		o.finishCancelled(unit, err, 0)
		return
	}
	defer o.locks.Release(unit.Path)

	start := time.Now()

	var (
		ref      *backend.RemoteRef
		attempts int
		err      error
	)
	switch unit.Direction {
	case DirectionDownload:
		ref, attempts, err = o.runDownload(ctx, unit)
	default:
		ref, attempts, err = o.runUpload(ctx, unit)
	}

	switch {
	case err == nil:
		if unit.Direction == DirectionUpload {
			o.transition(unit, catalog.StatusUploaded, func(item *catalog.Item) {
				item.Remote = ref
				item.LastError = ""
				// Part entries keep their own file sizes; only a unit
				// standing for itself adopts the uploaded size.
				if len(unit.Items) == 0 && ref != nil {
					item.Size = ref.Size
				}
			})
			o.persist(ctx)
		}
		o.log.Info("transfer complete",
			zap.String("unit", unit.ID),
			zap.String("path", unit.Path),
			zap.String("direction", string(unit.Direction)),
			zap.Int("attempts", attempts),
			zap.Duration("elapsed", time.Since(start)))
		o.emitResult(Result{Unit: *unit, Ref: ref, Attempts: attempts})
	case ctx.Err() != nil:
		o.finishCancelled(unit, err, attempts)
	default:
		if unit.Direction == DirectionUpload {
			o.transition(unit, catalog.StatusFailed, func(item *catalog.Item) {
				item.LastError = fmt.Sprintf("%s: %v", cargoerrors.KindOf(err), err)
			})
			o.persist(ctx)
		}
		o.log.Warn("transfer failed",
			zap.String("unit", unit.ID),
			zap.String("path", unit.Path),
			zap.String("kind", string(cargoerrors.KindOf(err))),
			zap.Int("attempts", attempts),
			zap.Error(err))
		o.emitResult(Result{Unit: *unit, Err: err, Attempts: attempts})
	}
}

// runUpload moves the unit's file to the backend picked by the selection
// policy, retrying transient failures within the retry budget. Each
// attempt reopens the source so the stream starts from the beginning.
func (o *Orchestrator) runUpload(ctx context.Context, unit *Unit) (*backend.RemoteRef, int, error) {
	size := unit.Size
	if size <= 0 {
		info, err := o.fsys.Stat(unit.Path)
		if err != nil {
			return nil, 0, cargoerrors.NewPathError("upload", unit.Path, fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
		}
		size = info.Size()
	}

	kind, err := backend.Select(size, o.policy)
	if err != nil {
		// Rejected before any network call.
		return nil, 0, err
	}
	adapter, ok := o.adapters[kind]
	if !ok {
		return nil, 0, cargoerrors.New("upload", fmt.Errorf("no adapter configured for backend %q", kind))
	}

	o.transition(unit, catalog.StatusUploading, nil)
	o.log.Debug("upload starting",
		zap.String("unit", unit.ID),
		zap.String("path", unit.Path),
		zap.String("backend", string(kind)),
		zap.Int64("size", size))

	contentType := backend.DetectContentType(o.fsys, unit.Path)
	tracker := o.trackerFor(unit)

	var ref *backend.RemoteRef
	attempts, err := runWithRetry(ctx, o.retry, func(runCtx context.Context) error {
		attemptCtx, cancel := o.attemptContext(runCtx)
		defer cancel()

		f, err := o.fsys.Open(unit.Path)
		if err != nil {
			return cargoerrors.NewPathError("upload", unit.Path, fmt.Errorf("%w: %w", cargoerrors.ErrIO, err))
		}
		defer f.Close()

		r, err := adapter.Put(attemptCtx, unit.Key, f, size,
			backend.WithTracker(tracker), backend.WithContentType(contentType))
		if err != nil {
			return err
		}
		ref = r
		return nil
	}, o.retryNotify(unit))
	if err != nil {
		return nil, attempts, err
	}
	return ref, attempts, nil
}

// finishCancelled returns an interrupted unit to pending. Cancellation
// is not failure.
func (o *Orchestrator) finishCancelled(unit *Unit, err error, attempts int) {
	if unit.Direction == DirectionUpload {
		o.transition(unit, catalog.StatusPending, nil)
		o.persist(context.Background())
	}
	o.log.Info("transfer interrupted",
		zap.String("unit", unit.ID),
		zap.String("path", unit.Path),
		zap.Int("attempts", attempts))
	o.emitResult(Result{Unit: *unit, Err: err, Attempts: attempts})
}

// requeueUnstarted empties the queue after a cancelled run, returning
// upload units to pending.
func (o *Orchestrator) requeueUnstarted() {
	left := o.queue.drain()
	for _, unit := range left {
		if unit.Direction == DirectionUpload {
			o.transition(unit, catalog.StatusPending, nil)
		}
		o.emitResult(Result{Unit: *unit, Err: context.Canceled})
	}
	if len(left) > 0 {
		o.log.Info("unstarted units returned to pending", zap.Int("count", len(left)))
	}
}

func (o *Orchestrator) ensureLoaded(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.loaded || o.store == nil {
		o.loaded = true
		return nil
	}
	items, err := o.store.Load(ctx)
	if err != nil {
		return err
	}
	o.items = items
	o.loaded = true
	return nil
}

// transition updates the catalog entries a unit stands for. mutate, when
// non-nil, runs on each entry after the status is applied.
func (o *Orchestrator) transition(unit *Unit, status catalog.Status, mutate func(*catalog.Item)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now().UTC()
	for _, path := range unit.catalogPaths() {
		idx, ok := o.items.Find(path)
		if !ok {
			item := catalog.Item{Path: path, Status: status, UpdatedAt: now}
			if len(unit.Items) == 0 {
				item.Size = unit.Size
			}
			o.items.Upsert(item)
			idx, _ = o.items.Find(path)
		} else {
			o.items[idx].Status = status
			o.items[idx].UpdatedAt = now
			// Direct units carry the file's own size; parts must not
			// clobber the per-file sizes they stand for.
			if len(unit.Items) == 0 && unit.Size > 0 {
				o.items[idx].Size = unit.Size
			}
		}
		if unit.Signature != "" && len(unit.Items) == 0 {
			o.items[idx].Signature = unit.Signature
		}
		if mutate != nil {
			mutate(&o.items[idx])
		}
	}
}

// persist writes the catalog through the store, if one is configured.
func (o *Orchestrator) persist(ctx context.Context) {
	if o.store == nil {
		return
	}
	o.mu.Lock()
	snapshot := make(catalog.Items, len(o.items))
	copy(snapshot, o.items)
	o.mu.Unlock()
	if err := o.store.Save(ctx, snapshot); err != nil {
		o.log.Warn("catalog save failed", zap.Error(err))
	}
}

// awaitResume blocks while the orchestrator is paused.
func (o *Orchestrator) awaitResume(ctx context.Context) error {
	for {
		o.mu.Lock()
		if !o.paused {
			o.mu.Unlock()
			return nil
		}
		ch := o.resumed
		o.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *Orchestrator) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.attemptTimeout > 0 {
		return context.WithTimeout(ctx, o.attemptTimeout)
	}
	return ctx, func() {}
}

func (o *Orchestrator) retryNotify(unit *Unit) backoff.Notify {
	return func(err error, wait time.Duration) {
		o.log.Warn("transfer attempt failed, backing off",
			zap.String("unit", unit.ID),
			zap.String("path", unit.Path),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
}

func (o *Orchestrator) emitEvent(ev Event) {
	if o.reporter != nil {
		o.reporter.Report(ev)
	}
}

func (o *Orchestrator) emitResult(res Result) {
	if o.resultFn != nil {
		o.resultFn(res)
	}
}

// trackerFor adapts a unit to the backend Tracker interface. Byte counts
// are clamped so observers never see progress move backwards, retries
// included.
func (o *Orchestrator) trackerFor(unit *Unit) backend.Tracker {
	return &unitTracker{o: o, id: unit.ID, direction: unit.Direction}
}

type unitTracker struct {
	o         *Orchestrator
	id        string
	direction Direction

	mu      sync.Mutex
	maxDone int64
}

func (t *unitTracker) Update(bytesTransferred, totalBytes int64) {
	t.mu.Lock()
	if bytesTransferred < t.maxDone {
		bytesTransferred = t.maxDone
	} else {
		t.maxDone = bytesTransferred
	}
	t.mu.Unlock()
	t.o.emitEvent(Event{
		UnitID:     t.id,
		Direction:  t.direction,
		BytesDone:  bytesTransferred,
		BytesTotal: totalBytes,
		Timestamp:  time.Now(),
	})
}

func (t *unitTracker) Complete() {}

func (t *unitTracker) Error(err error) {}
