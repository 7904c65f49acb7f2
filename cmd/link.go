package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glowstack/ingredient-cli/internal/linker"
	"github.com/glowstack/ingredient-cli/internal/model"
)

var (
	linkBatchSize  int
	linkAll        bool
	linkCostBudget float64
	linkTimeBudget time.Duration
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link unlinked products to canonical ingredients",
	Long:  "Parses raw ingredient labels of unlinked products, resolves each ingredient against the catalog (creating new entries via classification when needed), and writes link rows. Loops until done with --all.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "link")
		if err != nil {
			return err
		}
		defer env.Close()

		start := time.Now()
		total := &model.LinkBatchResult{}

		for {
			res, err := env.Linker.LinkBatch(ctx, linkBatchSize)
			if err != nil {
				return err
			}

			total.ProductsLinked += res.ProductsLinked
			total.ProductsSkipped += res.ProductsSkipped
			total.ProductsFailed += res.ProductsFailed
			total.IngredientsCreated += res.IngredientsCreated
			total.IngredientsMatched += res.IngredientsMatched
			total.CostUSD += res.CostUSD
			total.Remaining = res.Remaining
			for _, e := range res.Errors {
				if len(total.Errors) < linker.MaxCapturedErrors {
					total.Errors = append(total.Errors, e)
				}
			}

			if !linkAll || res.Remaining == 0 {
				break
			}
			if linkCostBudget > 0 && total.CostUSD >= linkCostBudget {
				zap.L().Warn("cost budget reached, stopping",
					zap.Float64("spent_usd", total.CostUSD),
					zap.Float64("budget_usd", linkCostBudget),
					zap.Int("remaining", res.Remaining),
				)
				break
			}
			if linkTimeBudget > 0 && time.Since(start) >= linkTimeBudget {
				zap.L().Warn("time budget reached, stopping",
					zap.Duration("elapsed", time.Since(start)),
					zap.Int("remaining", res.Remaining),
				)
				break
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(total)
	},
}

func init() {
	linkCmd.Flags().IntVar(&linkBatchSize, "batch-size", 0, "products per batch (default from config)")
	linkCmd.Flags().BoolVar(&linkAll, "all", false, "loop until no unlinked products remain")
	linkCmd.Flags().Float64Var(&linkCostBudget, "budget", 0, "stop --all once estimated classification cost reaches this USD amount")
	linkCmd.Flags().DurationVar(&linkTimeBudget, "time-budget", 0, "stop --all once this much wall-clock time has elapsed")
	rootCmd.AddCommand(linkCmd)
}
