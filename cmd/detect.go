package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/apaudit/internal/notify"
)

var detectNotify bool

var detectCmd = &cobra.Command{
	Use:   "detect <tenant>",
	Short: "Run a detection pass for one tenant",
	Args:  cobra.ExactArgs(1),
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

		run, err := env.engineFor(*tenant).Run(ctx, *tenant)
		if err != nil {
			return err
		}

		fmt.Printf("run %s complete: %d bills checked, %d alerts queued, $%.2f total impact\n",
			run.ID, run.Stats.BillsChecked, run.Stats.AlertQueued, run.Stats.TotalImpact)

		if detectNotify {
			counts, err := notify.New(env.Store).Dispatch(ctx, *tenant)
			if err != nil {
				return err
			}
			fmt.Printf("alerts: %d sent, %d failed, %d already sent\n", counts.Sent, counts.Failed, counts.Skipped)
		}
		return nil
	},
}

func init() {
	detectCmd.Flags().BoolVar(&detectNotify, "notify", false, "dispatch queued alerts to the tenant webhook after the run")
	rootCmd.AddCommand(detectCmd)
}
