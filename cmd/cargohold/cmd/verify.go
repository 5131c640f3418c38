package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// verifyCmd checks every uploaded catalog entry against the backend and
// repairs the records that no longer match: missing objects drop back to
// pending, size mismatches are marked failed.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check uploaded objects against the backend and repair the catalog",
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

		orch := rt.orchestrator(adapters)
		changed, err := orch.Reconcile(ctx)
		if err != nil {
			wrapFatalln("verify", err)
			return
		}
		fmt.Printf("catalog reconciled: %d item(s) updated\n", changed)

		stats, err := orch.Stats(ctx)
		if err != nil {
			wrapFatalln("read catalog", err)
			return
		}
		printStatusCounts(stats)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
