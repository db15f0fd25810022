package main

import (
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/apaudit/internal/notify"
)

var batchNotify bool

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run detection for every tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tenants, err := env.Store.ListTenants(ctx)
		if err != nil {
			return err
		}

		var succeeded, failed atomic.Int32

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Batch.MaxConcurrentTenants)
		for _, tenant := range tenants {
			g.Go(func() error {
				// Tenants are independent; one failing run must not stop the rest.
				run, err := env.engineFor(tenant).Run(gctx, tenant)
				if err != nil {
					failed.Add(1)
					zap.L().Error("tenant detection failed",
						zap.String("tenant", tenant.Name),
						zap.Error(err),
					)
					return nil
				}
				succeeded.Add(1)
				zap.L().Info("tenant detection complete",
					zap.String("tenant", tenant.Name),
					zap.String("run_id", run.ID),
					zap.Int("alert_queued", run.Stats.AlertQueued),
				)

				if batchNotify {
					if _, err := notify.New(env.Store).Dispatch(gctx, tenant); err != nil {
						zap.L().Error("alert dispatch failed",
							zap.String("tenant", tenant.Name),
							zap.Error(err),
						)
					}
				}
				return nil
			})
		}
		_ = g.Wait()

		fmt.Printf("batch complete: %d tenants succeeded, %d failed\n", succeeded.Load(), failed.Load())
		return nil
	},
}

func init() {
	batchCmd.Flags().BoolVar(&batchNotify, "notify", false, "dispatch queued alerts after each tenant's run")
	rootCmd.AddCommand(batchCmd)
}
