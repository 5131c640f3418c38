package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cargohold-io/cargohold/catalog"
	"github.com/cargohold-io/cargohold/transfer"
	"github.com/cargohold-io/cargohold/watch"
)

// watchCmd keeps the source directory under continuous protection. Every
// file that settles after a change is fingerprinted and uploaded as its
// own object; a catch-up scan at startup picks up whatever changed while
// the process was down.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the source directory and upload files as they change",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signalContext()
		defer stop()

		rt, err := newRuntime()
		if err != nil {
			wrapFatalln("initialize", err)
			return
		}
		defer rt.close()
		if err := rt.requireSource(); err != nil {
			wrapFatalln("source directory", err)
			return
		}
		adapters, err := rt.adapters(ctx)
		if err != nil {
			wrapFatalln("connect storage", err)
			return
		}

		orch := rt.orchestrator(adapters, transfer.WithResultFunc(printResult))

		handler := func(hctx context.Context, p string) {
			info, err := rt.fsys.Stat(p)
			if err != nil {
				rt.log.Warn("could not stat file", zap.String("path", p), zap.Error(err))
				return
			}
			sig, err := catalog.Signature(rt.fsys, p)
			if err != nil {
				rt.log.Warn("could not fingerprint file", zap.String("path", p), zap.Error(err))
				return
			}
			if items, err := orch.Snapshot(hctx); err == nil {
				if idx, ok := items.Find(p); ok &&
					items[idx].Status == catalog.StatusUploaded &&
					items[idx].Signature == sig {
					rt.log.Debug("unchanged since last upload", zap.String("path", p))
					return
				}
			}
			rel, err := filepath.Rel(rt.cfg.Source, p)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				rt.log.Warn("path outside the watched tree", zap.String("path", p))
				return
			}
			unit := transfer.Unit{
				Path:      p,
				Key:       remoteKey(rt.cfg.S3.Prefix, "files", filepath.ToSlash(rel)),
				Size:      info.Size(),
				Signature: sig,
			}
			if err := orch.Schedule(hctx, unit); err != nil {
				rt.log.Warn("could not schedule upload", zap.String("path", p), zap.Error(err))
			}
		}

		w := watch.New(rt.fsys, rt.cfg.Source, watch.Config{
			Debounce:        rt.cfg.Watch.Debounce,
			StabilityPoll:   rt.cfg.Watch.StabilityPoll,
			StabilityChecks: rt.cfg.Watch.StabilityChecks,
			IgnoreSuffixes:  rt.cfg.Watch.IgnoreSuffixes,
		}, handler, watch.WithLogger(rt.log))

		orchErr := make(chan error, 1)
		go func() { orchErr <- orch.Run(ctx) }()

		// Arm the watcher before the catch-up scan so nothing slips
		// between the two.
		go func() {
			select {
			case <-w.Ready():
			case <-ctx.Done():
				return
			}
			if err := w.Scan(ctx); err != nil && ctx.Err() == nil {
				rt.log.Warn("startup scan failed", zap.Error(err))
			}
		}()

		fmt.Printf("watching %s (interrupt to stop)\n", rt.cfg.Source)
		runErr := w.Run(ctx)
		orch.Close()
		transferErr := <-orchErr

		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			wrapFatalln("watch", runErr)
			return
		}
		if transferErr != nil && !errors.Is(transferErr, context.Canceled) {
			wrapFatalln("transfer", transferErr)
			return
		}
		fmt.Println("watch stopped")
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
