package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/cargohold-io/cargohold/backend"
	"github.com/cargohold-io/cargohold/catalog"
	"github.com/cargohold-io/cargohold/config"
	"github.com/cargohold-io/cargohold/fs"
	billyfs "github.com/cargohold-io/cargohold/fs/billy"
	"github.com/cargohold-io/cargohold/logging"
	"github.com/cargohold-io/cargohold/transfer"
)

// runtime bundles the collaborators every command wires up from
// configuration: the resolved config, the logger, the OS filesystem, and
// the catalog store.
type runtime struct {
	cfg   *config.Config
	log   *zap.Logger
	fsys  fs.Filesystem
	store catalog.Store
}

// newRuntime loads configuration and builds the shared pieces. Relative
// paths in the config resolve against the working directory once, here.
func newRuntime() (*runtime, error) {
	cfg, err := config.Load(rootFlags.configFile)
	if err != nil {
		return nil, err
	}
	if rootFlags.logLevel != "" {
		cfg.Log.Level = rootFlags.logLevel
	}
	for _, p := range []*string{&cfg.Source, &cfg.Staging, &cfg.Catalog} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("resolving path %q: %w", *p, err)
		}
		*p = abs
	}
	if cfg.Staging == "" {
		cfg.Staging = filepath.Join(os.TempDir(), "cargohold")
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, err
	}

	fsys := billyfs.NewOSFS("/")
	return &runtime{
		cfg:   cfg,
		log:   logger,
		fsys:  fsys,
		store: catalog.NewFileStore(fsys, cfg.Catalog),
	}, nil
}

// close flushes the logger.
func (r *runtime) close() {
	_ = r.log.Sync()
}

// requireSource fails commands that need a configured source directory.
func (r *runtime) requireSource() error {
	if r.cfg.Source == "" {
		return errors.New("source directory is not configured (set 'source' in cargohold.yaml)")
	}
	return nil
}

// adapters builds the enabled backends over one shared S3 client.
func (r *runtime) adapters(ctx context.Context) (map[backend.Kind]backend.Adapter, error) {
	if r.cfg.S3.Bucket == "" {
		return nil, errors.New("s3.bucket is not configured")
	}
	client, err := backend.NewS3Client(ctx, backend.S3Config{
		Region:         r.cfg.S3.Region,
		Endpoint:       r.cfg.S3.Endpoint,
		AccessKey:      r.cfg.S3.AccessKey,
		SecretKey:      r.cfg.S3.SecretKey,
		SessionToken:   r.cfg.S3.SessionToken,
		ForcePathStyle: r.cfg.S3.ForcePathStyle,
		Timeout:        r.cfg.S3.Timeout,
		MaxRetries:     r.cfg.S3.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	t := r.cfg.Transfer
	m := make(map[backend.Kind]backend.Adapter, 2)
	if t.SimpleEnabled {
		m[backend.KindSimple] = backend.NewSimple(client, r.cfg.S3.Bucket, t.SimpleLimit)
	}
	if t.ChunkedEnabled {
		m[backend.KindChunked] = backend.NewChunked(client, r.cfg.S3.Bucket, t.ChunkedLimit, t.ChunkSize)
	}
	if len(m) == 0 {
		return nil, errors.New("no transfer backend is enabled")
	}
	return m, nil
}

// policy maps transfer settings onto backend selection, falling back to
// the backend defaults for unset ceilings.
func (r *runtime) policy() backend.Policy {
	t := r.cfg.Transfer
	pol := backend.Policy{
		SimpleEnabled:  t.SimpleEnabled,
		ChunkedEnabled: t.ChunkedEnabled,
		ForceSimple:    t.ForceSimple,
		ForceChunked:   t.ForceChunked,
		SimpleLimit:    t.SimpleLimit,
		ChunkedLimit:   t.ChunkedLimit,
	}
	if pol.SimpleLimit <= 0 {
		pol.SimpleLimit = backend.DefaultSimpleLimit
	}
	if pol.ChunkedLimit <= 0 {
		pol.ChunkedLimit = backend.DefaultChunkedLimit
	}
	return pol
}

// orchestrator builds a transfer orchestrator wired to the catalog and
// the configured worker, retry, and throttle settings.
func (r *runtime) orchestrator(adapters map[backend.Kind]backend.Adapter, extra ...transfer.Option) *transfer.Orchestrator {
	opts := []transfer.Option{
		transfer.WithStore(r.store),
		transfer.WithPolicy(r.policy()),
		transfer.WithLogger(r.log),
	}
	t := r.cfg.Transfer
	if t.Workers > 0 {
		opts = append(opts, transfer.WithWorkers(t.Workers))
	}
	budget, base := t.RetryBudget, t.RetryBase
	if budget <= 0 {
		budget = transfer.DefaultRetryBudget
	}
	if base <= 0 {
		base = transfer.DefaultRetryBase
	}
	opts = append(opts, transfer.WithRetry(budget, base))
	if t.AttemptTimeout > 0 {
		opts = append(opts, transfer.WithAttemptTimeout(t.AttemptTimeout))
	}
	if t.Throttle > 0 {
		opts = append(opts, transfer.WithThrottle(t.Throttle))
	}
	opts = append(opts, extra...)
	return transfer.New(r.fsys, adapters, opts...)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// remoteKey joins object key segments with forward slashes. Empty
// segments drop out.
func remoteKey(segments ...string) string {
	return path.Join(segments...)
}

// humanBytes renders a byte count the way sizes are written in the
// config file.
func humanBytes(n int64) string {
	return units.HumanSize(float64(n))
}

// printResult reports one finished unit on stdout. Runs on orchestrator
// worker goroutines; each call writes a single line.
func printResult(res transfer.Result) {
	name := filepath.Base(res.Unit.Path)
	size := res.Unit.Size
	if res.Ref != nil && res.Ref.Size > 0 {
		size = res.Ref.Size
	}
	switch {
	case res.Err == nil && res.Unit.Direction == transfer.DirectionDownload:
		fmt.Printf("downloaded %s (%s)\n", name, humanBytes(size))
	case res.Err == nil:
		fmt.Printf("uploaded %s (%s)\n", name, humanBytes(size))
	case errors.Is(res.Err, context.Canceled):
		fmt.Printf("interrupted %s, kept pending\n", name)
	default:
		fmt.Printf("failed %s: %v\n", name, res.Err)
	}
}

// printStatusCounts writes one line per non-empty status, in lifecycle
// order.
func printStatusCounts(counts map[catalog.Status]int) {
	order := []catalog.Status{
		catalog.StatusPending,
		catalog.StatusArchiving,
		catalog.StatusQueued,
		catalog.StatusUploading,
		catalog.StatusUploaded,
		catalog.StatusFailed,
	}
	for _, st := range order {
		if counts[st] > 0 {
			fmt.Printf("%s: %d\n", st, counts[st])
		}
	}
}
