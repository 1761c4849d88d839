package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"householdledger/internal/core"
)

func schedulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Inspect and run recurring schedules",
	}
	cmd.AddCommand(schedulesListCmd())
	cmd.AddCommand(schedulesRunCmd())
	return cmd
}

func schedulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, closeApp, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			items, err := app.Schedules.List(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(w, "no schedules")
				return nil
			}
			for _, item := range items {
				last := item.LastGenerated.String()
				if last == "" {
					last = "never"
				}
				fmt.Fprintf(w, "[%d] %s %s %s %s day=%d start=%s last=%s\n",
					item.ID, item.Name, item.Type, item.Category, core.FormatAmount(item.Amount),
					item.Day, item.StartDate, last)
			}
			return nil
		},
	}
}

func schedulesRunCmd() *cobra.Command {
	var today string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate every transaction the schedules owe up to today",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			if today != "" {
				d, err := core.ParseDate(today)
				if err != nil {
					return err
				}
				// Noon keeps the local calendar day stable in any zone.
				now = time.Date(d.Year(), time.Month(d.Month()), d.Day(), 12, 0, 0, 0, time.Local)
			}

			app, closeApp, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			res, err := app.Engine.GenerateDueTransactions(cmd.Context(), now)
			if err != nil {
				return err
			}
			printTransactions(cmd.OutOrStdout(), res.Generated)
			fmt.Fprintf(cmd.OutOrStdout(), "generated %d transaction(s), %d schedule(s) updated\n",
				len(res.Generated), res.SchedulesUpdated)
			return nil
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "run as of this date, YYYY-MM-DD (default: today)")
	return cmd
}
