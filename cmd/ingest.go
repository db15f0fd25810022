package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/apaudit/internal/ingest"
	"github.com/sells-group/apaudit/internal/normalize"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <tenant> <batch.json>",
	Short: "Ingest a connector batch file for a tenant",
	Long:  "Reads a JSON batch of bills and payments exported by a connector and writes new or changed records. Re-feeding the same file is a no-op.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tenant, err := env.Store.GetTenantByName(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "resolve tenant %s", args[0])
		}

		data, err := os.ReadFile(args[1])
		if err != nil {
			return eris.Wrapf(err, "read batch file %s", args[1])
		}
		var batch ingest.Batch
		if err := json.Unmarshal(data, &batch); err != nil {
			return eris.Wrapf(err, "parse batch file %s", args[1])
		}

		ig := ingest.New(env.Store, normalize.NewResolver(0), cfg.Detection.LineItemTolerance)
		counts, err := ig.Sync(ctx, *tenant, batch)
		if err != nil {
			return err
		}

		fmt.Printf("ingested: %d bills created, %d versioned, %d unchanged, %d payments, %d vendors created, %d quality flags\n",
			counts.BillsCreated, counts.BillVersions, counts.Unchanged, counts.Payments, counts.VendorsCreated, counts.QualityFlags)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
