package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cargohold-io/cargohold/catalog"
)

// statusCmd prints the catalog grouped by lifecycle state. It only reads
// the local catalog file; nothing talks to the backend.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the catalog tracks and where each item stands",
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := newRuntime()
		if err != nil {
			wrapFatalln("initialize", err)
			return
		}
		defer rt.close()

		items, err := rt.store.Load(context.Background())
		if err != nil {
			wrapFatalln("load catalog", err)
			return
		}
		if len(items) == 0 {
			fmt.Println("catalog is empty")
			return
		}

		order := []catalog.Status{
			catalog.StatusPending,
			catalog.StatusArchiving,
			catalog.StatusQueued,
			catalog.StatusUploading,
			catalog.StatusUploaded,
			catalog.StatusFailed,
		}
		for _, st := range order {
			var (
				group []catalog.Item
				total int64
			)
			for _, item := range items {
				if item.Status == st {
					group = append(group, item)
					total += item.Size
				}
			}
			if len(group) == 0 {
				continue
			}
			fmt.Printf("%s: %d item(s), %s\n", st, len(group), humanBytes(total))
			for _, item := range group {
				fmt.Printf("  %s  %s\n", item.Path, humanBytes(item.Size))
				if st == catalog.StatusUploaded && item.Remote != nil {
					fmt.Printf("    -> s3://%s/%s\n", item.Remote.Bucket, item.Remote.Key)
				}
				if st == catalog.StatusFailed && item.LastError != "" {
					fmt.Printf("    (%s)\n", item.LastError)
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
