package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cargohold-io/cargohold/archive"
	"github.com/cargohold-io/cargohold/catalog"
	"github.com/cargohold-io/cargohold/transfer"
)

// backupCmd packs the source directory and pipelines the sealed parts
// into the uploader.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Pack the source directory and upload the parts",
	Long: `Backup walks the source directory, packs its files into size-bounded
zip parts under a fresh session staging directory, and uploads each part
as soon as it is sealed. Interrupting the run keeps finished uploads and
returns unfinished work to pending.`,
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
			wrapFatalln("backup", err)
			return
		}
		adapters, err := rt.adapters(ctx)
		if err != nil {
			wrapFatalln("connect storage", err)
			return
		}

		session := archive.NewJobID()
		stagingDir := filepath.Join(rt.cfg.Staging, session)

		orch := rt.orchestrator(adapters, transfer.WithResultFunc(printResult))
		runErr := make(chan error, 1)
		go func() { runErr <- orch.Run(ctx) }()

		packer := archive.NewPacker(rt.fsys, archive.Config{
			SourceDir:  rt.cfg.Source,
			StagingDir: stagingDir,
			BaseName:   rt.cfg.Archive.BaseName,
			Ceiling:    rt.cfg.Archive.Ceiling,
			Workers:    rt.cfg.Archive.Workers,
			JobID:      session,
		})
		report, packErr := packer.Pack(ctx, func(part archive.Part) {
			unit := transfer.Unit{
				Path:  part.Path,
				Key:   remoteKey(rt.cfg.S3.Prefix, session, part.Name),
				Size:  part.Size,
				Items: sourcePaths(rt.cfg.Source, part),
			}
			if err := orch.Schedule(ctx, unit); err != nil {
				rt.log.Warn("could not schedule part",
					zap.String("part", part.Name), zap.Error(err))
			}
		})
		orch.Close()
		transferErr := <-runErr

		if ctx.Err() != nil ||
			errors.Is(packErr, context.Canceled) ||
			errors.Is(transferErr, context.Canceled) {
			wrapFatalWithCodef(1, "backup interrupted; unfinished work stays pending for the next run")
			return
		}
		if packErr != nil {
			wrapFatalln("pack source", packErr)
			return
		}
		if transferErr != nil {
			wrapFatalln("transfer", transferErr)
			return
		}

		printBackupSummary(session, report)
		stats, err := orch.Stats(context.Background())
		if err == nil {
			printStatusCounts(stats)
		}
		if failed := stats[catalog.StatusFailed]; failed > 0 {
			wrapFatalWithCodef(1, "%d transfer(s) failed; rerun backup or check the log", failed)
			return
		}
	},
}

// sourcePaths maps a part's entries back to their absolute source files,
// for catalog bookkeeping.
func sourcePaths(sourceDir string, part archive.Part) []string {
	paths := make([]string, 0, len(part.Entries))
	for _, e := range part.Entries {
		paths = append(paths, filepath.Join(sourceDir, filepath.FromSlash(e.RelPath)))
	}
	return paths
}

func printBackupSummary(session string, report *archive.Report) {
	files := 0
	for _, part := range report.Parts {
		files += len(part.Entries)
	}
	fmt.Printf("session %s: %d part(s), %s from %d file(s)\n",
		session, len(report.Parts), humanBytes(report.TotalBytes), files)
	for _, fe := range report.Failed {
		fmt.Printf("could not pack %s: %v\n", fe.Path, fe.Err)
	}
	if len(report.Skipped) > 0 {
		fmt.Printf("skipped %d file(s) from discarded parts; rerun backup to retry them\n",
			len(report.Skipped))
	}
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
