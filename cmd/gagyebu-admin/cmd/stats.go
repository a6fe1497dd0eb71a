package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gagyebu/internal/core"
)

func newStatsCmd(opts *options) *cobra.Command {
	var (
		user  string
		year  int
		month int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print monthly totals for a user",
		Long: `Print the income, expense and balance of one month for a user,
followed by the expense split per category.

The user is looked up by email when the value contains "@", otherwise by UID.

Example:
  gagyebu-admin stats --user kim@example.com --year 2024 --month 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if year == 0 {
				year = now.Year()
			}
			if month == 0 {
				month = int(now.Month())
			}
			m := core.Month{Year: year, Month: month}
			if !m.Valid() {
				return fmt.Errorf("invalid month %d-%02d", year, month)
			}

			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			ctx := cmd.Context()
			var u core.User
			if strings.Contains(user, "@") {
				u, err = repo.GetUserByEmail(ctx, user)
			} else {
				u, err = repo.GetUser(ctx, user)
			}
			if err != nil {
				return fmt.Errorf("lookup user %q: %w", user, err)
			}

			items, err := repo.QueryMonth(ctx, u.UID, m)
			if err != nil {
				return fmt.Errorf("query %s: %w", m, err)
			}
			totals := core.MonthlyTotals(items)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s · %s (%s)\n", m.Label(), u.DisplayName(), u.Email)
			fmt.Fprintf(out, "기록 %d건\n", len(items))
			fmt.Fprintf(out, "수입  %s\n", core.FormatWon(totals.Income))
			fmt.Fprintf(out, "지출  %s\n", core.FormatWon(totals.Expense))
			fmt.Fprintf(out, "잔액  %s\n", core.FormatWon(totals.Balance()))

			byCategory := expenseByCategory(items)
			if len(byCategory) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, c := range byCategory {
				fmt.Fprintf(tw, "%s\t%s\n", c.name, core.FormatWon(c.amount))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user email or UID")
	cmd.Flags().IntVar(&year, "year", 0, "year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12 (default current)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

type categoryAmount struct {
	name   string
	amount int64
}

// expenseByCategory sums expenses per category, largest first.
func expenseByCategory(items []core.Transaction) []categoryAmount {
	sums := make(map[string]int64)
	for _, t := range items {
		if t.Type == core.Expense {
			sums[t.Category] += t.Amount
		}
	}
	out := make([]categoryAmount, 0, len(sums))
	for name, amount := range sums {
		out = append(out, categoryAmount{name: name, amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].amount != out[j].amount {
			return out[i].amount > out[j].amount
		}
		return out[i].name < out[j].name
	})
	return out
}
