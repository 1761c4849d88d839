package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"householdledger/internal/core"
)

func txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "List, add and delete transactions",
	}
	cmd.AddCommand(txListCmd())
	cmd.AddCommand(txAddCmd())
	cmd.AddCommand(txDeleteCmd())
	return cmd
}

// period resolves the --year and --month flags. With neither the current
// month is selected; a month without a year uses the current year.
func period(year, month int, now time.Time) (int, int, bool, error) {
	if month < 0 || month > 12 {
		return 0, 0, false, fmt.Errorf("invalid month %d", month)
	}
	if year < 0 {
		return 0, 0, false, fmt.Errorf("invalid year %d", year)
	}
	if year == 0 && month == 0 {
		return now.Year(), int(now.Month()), true, nil
	}
	if year == 0 {
		year = now.Year()
	}
	return year, month, month != 0, nil
}

func txListCmd() *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the transactions of a month or a year",
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

			var txs []core.Transaction
			if monthly {
				txs, err = app.Ledger.Month(cmd.Context(), year, month)
			} else {
				txs, err = app.Ledger.Year(cmd.Context(), year)
			}
			if err != nil {
				return fmt.Errorf("list transactions: %w", err)
			}
			printTransactions(cmd.OutOrStdout(), app.Categories.NormalizeTransactions(txs))
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year to list (default: current)")
	cmd.Flags().IntVar(&month, "month", 0, "month to list, 1-12 (default: current when --year is unset)")
	return cmd
}

func printTransactions(w io.Writer, txs []core.Transaction) {
	if len(txs) == 0 {
		fmt.Fprintln(w, "no transactions")
		return
	}
	for _, tx := range txs {
		fmt.Fprintf(w, "[%d] %s %s %s %s %s\n",
			tx.ID, tx.Date, tx.Type, tx.Category, tx.Memo, core.FormatAmount(tx.Amount))
	}
}

func txAddCmd() *cobra.Command {
	var date, txType, category, memo, amount string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a transaction",
		Example: `  ledger tx add --date 2024-03-15 --type expense --category 식비 --memo lunch --amount 12,000
  ledger tx add --type income --category 월급 --amount 3000000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if date == "" {
				date = time.Now().Format(core.DateLayout)
			}
			if _, err := core.ParseDate(date); err != nil {
				return err
			}
			value, err := core.ParseAmount(amount)
			if err != nil {
				return fmt.Errorf("amount %q: %w", amount, err)
			}

			app, closeApp, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			tx := core.Transaction{
				Date:     date,
				Type:     core.ParseTxType(txType),
				Category: app.Categories.Normalize(category),
				Memo:     memo,
				Amount:   value,
			}
			id, err := app.Ledger.Create(cmd.Context(), tx)
			if err != nil {
				return err
			}
			tx.ID = id
			printTransactions(cmd.OutOrStdout(), []core.Transaction{tx})
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&txType, "type", "expense", "income, expense, saving or transfer")
	cmd.Flags().StringVar(&category, "category", "", "category; unknown categories become 기타")
	cmd.Flags().StringVar(&memo, "memo", "", "free-form note")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in minor units; ',' grouping is accepted")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func txDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a transaction by id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, closeApp, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			found, err := app.Ledger.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted [%d]\n", id)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "transaction id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
