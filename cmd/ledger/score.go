package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"householdledger/internal/scoring"
)

func scoreCmd() *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Print the budget game score of a month or a year as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			year, month, monthly, err := period(year, month, time.Now())
			if err != nil {
				return err
			}

			app, closeApp, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			var score scoring.Score
			if monthly {
				score, err = app.Scoring.ScoreMonth(cmd.Context(), year, month)
			} else {
				score, err = app.Scoring.ScoreYear(cmd.Context(), year)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(score)
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year to score (default: current)")
	cmd.Flags().IntVar(&month, "month", 0, "month to score, 1-12 (default: current when --year is unset)")
	return cmd
}
