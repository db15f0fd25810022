package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sells-group/apaudit/internal/ingest"
	"github.com/sells-group/apaudit/internal/model"
	"github.com/sells-group/apaudit/internal/normalize"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a demo tenant with bills that trigger each detector",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tenant := model.Tenant{
			ID:           uuid.New().String(),
			Name:         "demo",
			BaseCurrency: "USD",
			APIKey:       uuid.New().String(),
			CreatedAt:    time.Now().UTC(),
		}
		if err := env.Store.CreateTenant(ctx, tenant); err != nil {
			return err
		}
		fmt.Printf("api key: %s\n", tenant.APIKey)

		ig := ingest.New(env.Store, normalize.NewResolver(0), cfg.Detection.LineItemTolerance)
		counts, err := ig.Sync(ctx, tenant, demoBatch(time.Now().UTC()))
		if err != nil {
			return err
		}

		fmt.Printf("seeded tenant %q: %d vendors, %d bills\n",
			tenant.Name, counts.VendorsCreated, counts.BillsCreated)
		fmt.Println(`run "apaudit detect demo" to see findings`)
		return nil
	},
}

// demoBatch fabricates ~3 months of history per vendor plus one planted
// anomaly of each type.
func demoBatch(now time.Time) ingest.Batch {
	rng := rand.New(rand.NewPCG(42, 0))
	var batch ingest.Batch

	day := func(daysAgo int) time.Time { return now.AddDate(0, 0, -daysAgo) }
	add := func(vendorExt, vendorName string, total float64, daysAgo int, lines ...ingest.LineItemRecord) {
		batch.Bills = append(batch.Bills, ingest.BillRecord{
			VendorExternalID: vendorExt,
			VendorName:       vendorName,
			ExternalID:       fmt.Sprintf("%s-%03d", vendorExt, len(batch.Bills)),
			Total:            total,
			BillDate:         day(daysAgo),
			Paid:             true,
			LineItems:        lines,
		})
	}

	// Stable weekly vendor, then one bill well above its band.
	for week := 12; week >= 1; week-- {
		add("qb-lawn", "GreenScape Lawn Care", 440+rng.Float64()*20, week*7)
	}
	add("qb-lawn", "GreenScape Lawn Care", 980, 2)

	// Monthly vendor with an exact duplicate three days apart.
	for month := 3; month >= 1; month-- {
		add("qb-clean", "Sparkle Cleaning Services LLC", 1200, month*30)
	}
	add("qb-clean", "Sparkle Cleaning", 1200, 27) // same amount, day 30 vs 27

	// Itemized vendor with history, then an off-scope line item.
	plumbing := func(extra ...ingest.LineItemRecord) []ingest.LineItemRecord {
		lines := []ingest.LineItemRecord{
			{Description: "monthly backflow inspection", Quantity: 1, UnitPrice: 150, Amount: 150},
			{Description: "filter replacement", Quantity: 2, UnitPrice: 75, Amount: 150},
		}
		return append(lines, extra...)
	}
	for month := 3; month >= 1; month-- {
		add("qb-plumb", "Apex Plumbing Inc.", 300, month*28, plumbing()...)
	}
	add("qb-plumb", "Apex Plumbing", 1100, 5, plumbing(
		ingest.LineItemRecord{Description: "parking lot resurfacing", Quantity: 1, UnitPrice: 800, Amount: 800},
	)...)

	// Sparse vendor submitting a suspiciously round, unitemized total.
	add("qb-consult", "Meridian Consulting Group", 3740, 45)
	add("qb-consult", "Meridian Consulting Group", 3695, 75)
	add("qb-consult", "Meridian Consulting Group", 3810, 15)
	add("qb-consult", "Meridian Consulting Group", 5000, 1)

	return batch
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
