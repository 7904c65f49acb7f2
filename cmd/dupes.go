package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/glowstack/ingredient-cli/internal/model"
)

var (
	dupesProductID string
	dupesMax       int
	dupesMinScore  float64
)

var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "Find cheaper near-equivalents of a product",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "catalog")
		if err != nil {
			return err
		}
		defer env.Close()

		maxDupes := dupesMax
		if maxDupes == 0 {
			maxDupes = cfg.Dupes.MaxResults
		}
		minScore := dupesMinScore
		if minScore == 0 {
			minScore = cfg.Dupes.MinScore
		}

		results, err := env.Finder.FindDupes(ctx, dupesProductID, maxDupes, minScore)
		if err != nil {
			return err
		}
		if results == nil {
			results = []model.Dupe{}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	dupesCmd.Flags().StringVar(&dupesProductID, "product-id", "", "target product (required)")
	dupesCmd.Flags().IntVar(&dupesMax, "max", 0, "maximum dupes to return (default from config)")
	dupesCmd.Flags().Float64Var(&dupesMinScore, "min-score", 0, "minimum match score (default from config)")
	_ = dupesCmd.MarkFlagRequired("product-id")
	rootCmd.AddCommand(dupesCmd)
}
