package cmd

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cargohold-io/cargohold/archive"
	"github.com/cargohold-io/cargohold/catalog"
	"github.com/cargohold-io/cargohold/transfer"
)

var restoreFlags struct {
	dest string
}

// restoreCmd downloads everything the catalog marks uploaded and rebuilds
// the tree: archive parts are fetched into a staging directory and
// unpacked in index order, directly tracked files land at their relative
// paths.
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Download uploaded objects and rebuild the tree",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signalContext()
		defer stop()

		rt, err := newRuntime()
		if err != nil {
			wrapFatalln("initialize", err)
			return
		}
		defer rt.close()
		adapters, err := rt.adapters(ctx)
		if err != nil {
			wrapFatalln("connect storage", err)
			return
		}

		dest, err := filepath.Abs(restoreFlags.dest)
		if err != nil {
			wrapFatalln("resolve destination", err)
			return
		}
		items, err := rt.store.Load(ctx)
		if err != nil {
			wrapFatalln("load catalog", err)
			return
		}

		stagingDir := filepath.Join(rt.cfg.Staging, "restore_"+archive.NewJobID())
		directPrefix := remoteKey(rt.cfg.S3.Prefix, "files") + "/"

		// Many catalog items can share one part object; download each
		// object once.
		var (
			units     []transfer.Unit
			partFiles []string
			seen      = make(map[string]bool)
		)
		for _, item := range items {
			if item.Status != catalog.StatusUploaded || item.Remote == nil {
				continue
			}
			ref := *item.Remote
			id := ref.Bucket + "/" + ref.Key
			if seen[id] {
				continue
			}
			seen[id] = true

			if rel, ok := strings.CutPrefix(ref.Key, directPrefix); ok {
				units = append(units, transfer.Unit{
					Path:      filepath.Join(dest, filepath.FromSlash(rel)),
					Direction: transfer.DirectionDownload,
					Ref:       &ref,
				})
				continue
			}
			local := filepath.Join(stagingDir, path.Base(ref.Key))
			partFiles = append(partFiles, local)
			units = append(units, transfer.Unit{
				Path:      local,
				Direction: transfer.DirectionDownload,
				Ref:       &ref,
			})
		}
		if len(units) == 0 {
			fmt.Println("nothing to restore: the catalog has no uploaded items")
			return
		}

		var failed atomic.Int64
		orch := rt.orchestrator(adapters, transfer.WithResultFunc(func(res transfer.Result) {
			printResult(res)
			if res.Err != nil {
				failed.Add(1)
			}
		}))
		for _, unit := range units {
			if err := orch.Schedule(ctx, unit); err != nil {
				rt.log.Warn("could not schedule download",
					zap.String("key", unit.Ref.Key), zap.Error(err))
			}
		}
		orch.Close()
		if err := orch.Run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				wrapFatalWithCodef(1, "restore interrupted")
				return
			}
			wrapFatalln("download", err)
			return
		}
		if n := failed.Load(); n > 0 {
			wrapFatalWithCodef(1, "%d download(s) failed; rerun restore to retry", n)
			return
		}

		if len(partFiles) > 0 {
			if err := archive.Unpack(ctx, rt.fsys, partFiles, dest); err != nil {
				wrapFatalln("unpack parts", err)
				return
			}
		}
		fmt.Printf("restored %d object(s) into %s\n", len(units), dest)
	},
}

func init() {
	restoreCmd.Flags().StringVar(&restoreFlags.dest, "dest", "",
		"destination directory for the restored tree")
	_ = restoreCmd.MarkFlagRequired("dest")
	rootCmd.AddCommand(restoreCmd)
}
