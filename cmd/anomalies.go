package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/apaudit/internal/model"
	"github.com/sells-group/apaudit/internal/store"
)

var (
	anomaliesType   string
	anomaliesStatus string
	anomaliesLimit  int
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies <tenant>",
	Short: "List detected anomalies for a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tenant, err := env.Store.GetTenantByName(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "resolve tenant %s", args[0])
		}

		anomalies, err := env.Store.ListAnomalies(ctx, store.AnomalyFilter{
			TenantID: tenant.ID,
			Type:     model.AnomalyType(anomaliesType),
			Status:   model.AnomalyStatus(anomaliesStatus),
			Limit:    anomaliesLimit,
		})
		if err != nil {
			return err
		}

		if len(anomalies) == 0 {
			fmt.Println("no anomalies")
			return nil
		}
		for _, a := range anomalies {
			sent := ""
			if a.AlertSent {
				sent = " [sent]"
			}
			fmt.Printf("%s  %-12s %-6s %-14s $%9.2f  %s%s\n",
				a.DetectedAt.Format("2006-01-02"), a.Type, a.Tier, a.Status, a.Impact, a.Detail, sent)
		}
		return nil
	},
}

func init() {
	anomaliesCmd.Flags().StringVar(&anomaliesType, "type", "", "filter by anomaly type")
	anomaliesCmd.Flags().StringVar(&anomaliesStatus, "status", "", "filter by status (dashboard_only, alert_queued)")
	anomaliesCmd.Flags().IntVar(&anomaliesLimit, "limit", 100, "max rows")
	rootCmd.AddCommand(anomaliesCmd)
}
