package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/glowstack/ingredient-cli/internal/parser"
)

var (
	scanProductID string
	scanLabel     string
	scanDryRun    bool
)

// scanResult is the stdout shape of the scan command.
type scanResult struct {
	ProductID string   `json:"product_id"`
	Changed   bool     `json:"changed"`
	Added     []string `json:"added,omitempty"`
	Removed   []string `json:"removed,omitempty"`
	Reordered bool     `json:"reordered"`
	Version   int      `json:"version,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Impact    string   `json:"impact,omitempty"`
	Alerted   bool     `json:"alerted"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Compare a freshly scanned label against a product's stored formulation",
	Long:  "Parses the given label text, diffs it against the product's current link-derived ingredient list, and records a versioned formulation change (with user alerts) when the diff clears the noise gate.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mentions := parser.Parse(scanLabel)
		if len(mentions) == 0 {
			return eris.New("label parsed to zero ingredients")
		}
		names := make([]string, 0, len(mentions))
		for _, m := range mentions {
			names = append(names, m.Name)
		}

		env, err := initApp(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		diff, err := env.Detector.Detect(ctx, scanProductID, names)
		if err != nil {
			return err
		}

		result := scanResult{
			ProductID: scanProductID,
			Changed:   diff.Changed,
			Added:     diff.Added,
			Removed:   diff.Removed,
			Reordered: diff.Reordered,
		}

		if diff.Changed && !scanDryRun {
			change, err := env.Detector.Record(ctx, scanProductID, diff, "scan")
			if err != nil {
				return err
			}
			result.Version = change.Version
			result.Summary = change.ChangeSummary
			result.Impact = change.ImpactAssessment
			result.Alerted = true
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanProductID, "product-id", "", "product to scan against (required)")
	scanCmd.Flags().StringVar(&scanLabel, "label", "", "raw ingredient label text (required)")
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "report the diff without recording or alerting")
	_ = scanCmd.MarkFlagRequired("product-id")
	_ = scanCmd.MarkFlagRequired("label")
	rootCmd.AddCommand(scanCmd)
}
