package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sells-group/apaudit/internal/model"
)

var (
	tenantCurrency string
	tenantWebhook  string
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		t := model.Tenant{
			ID:           uuid.New().String(),
			Name:         args[0],
			BaseCurrency: tenantCurrency,
			APIKey:       uuid.New().String(),
			WebhookURL:   tenantWebhook,
			CreatedAt:    time.Now().UTC(),
		}
		if err := env.Store.CreateTenant(ctx, t); err != nil {
			return err
		}
		fmt.Printf("created tenant %s (%s)\n", t.Name, t.ID)
		fmt.Printf("api key: %s\n", t.APIKey)
		return nil
	},
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tenants, err := env.Store.ListTenants(ctx)
		if err != nil {
			return err
		}
		for _, t := range tenants {
			webhook := "-"
			if t.WebhookURL != "" {
				webhook = t.WebhookURL
			}
			fmt.Printf("%-24s %-5s webhook=%s\n", t.Name, t.BaseCurrency, webhook)
		}
		return nil
	},
}

func init() {
	tenantCreateCmd.Flags().StringVar(&tenantCurrency, "currency", "USD", "tenant base currency")
	tenantCreateCmd.Flags().StringVar(&tenantWebhook, "webhook", "", "alert webhook URL")
	tenantCmd.AddCommand(tenantCreateCmd, tenantListCmd)
	rootCmd.AddCommand(tenantCmd)
}
