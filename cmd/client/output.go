package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/atinyakov/GophSpend/internal/client/analytics"
	"github.com/atinyakov/GophSpend/internal/models"
)

func printUsers(w io.Writer, users []models.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\n", u.ID, analytics.Initials(u.Name), u.Name, u.Email, u.Phone)
	}
	_ = tw.Flush()
}

func printExpenses(w io.Writer, expenses []models.Expense) {
	if len(expenses) == 0 {
		fmt.Fprintln(w, "No expenses")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTITLE\tCATEGORY\tPAID BY\tAMOUNT")
	for _, x := range expenses {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\t%s\t%s\n",
			x.ID, x.Date, x.Time, x.Title, x.Category, x.UserName,
			analytics.FormatCurrency(decimal.NewFromFloat(x.Amount)))
	}
	_ = tw.Flush()
}

func printSummary(w io.Writer, s analytics.Summary) {
	fmt.Fprintf(w, "Total: %s across %d expenses\n", analytics.FormatCurrency(s.Total), s.Count)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(s.ByCategory) > 0 {
		fmt.Fprintln(tw, "\nCATEGORY\tCOUNT\tTOTAL")
		for _, c := range s.ByCategory {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Category, c.Count, analytics.FormatCurrency(c.Total))
		}
	}
	if len(s.ByUser) > 0 {
		fmt.Fprintln(tw, "\nUSER\tCOUNT\tTOTAL\tSHARE")
		for _, u := range s.ByUser {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s%%\n", u.Name, u.Count, analytics.FormatCurrency(u.Total), u.Share.StringFixed(1))
		}
	}
	if len(s.Monthly) > 0 {
		fmt.Fprintln(tw, "\nMONTH\tTOTAL\tCHANGE")
		prev := decimal.Zero
		for i, m := range s.Monthly {
			change := ""
			if i > 0 {
				change = analytics.PercentageChange(m.Total, prev)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Month, analytics.FormatCurrency(m.Total), change)
			prev = m.Total
		}
	}
	_ = tw.Flush()
}
