// Package analytics aggregates expenses for reporting. Sums are computed in
// decimal so totals of cent amounts do not drift.
package analytics

import (
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/atinyakov/GophSpend/internal/models"
)

var hundred = decimal.NewFromInt(100)

// CategoryTotal is the amount spent in one category.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
	Count    int
}

// UserSpending is one user's share of all expenses.
type UserSpending struct {
	UserID string
	Name   string
	Total  decimal.Decimal
	Count  int
	// Share is the percentage of the overall total.
	Share decimal.Decimal
}

// MonthTotal is the amount spent in a calendar month, keyed YYYY-MM.
type MonthTotal struct {
	Month string
	Total decimal.Decimal
}

// Summary bundles the figures shown by the dashboard.
type Summary struct {
	Total      decimal.Decimal
	Count      int
	ByCategory []CategoryTotal
	ByUser     []UserSpending
	Monthly    []MonthTotal
}

func amount(e models.Expense) decimal.Decimal {
	return decimal.NewFromFloat(e.Amount)
}

// Total sums all amounts.
func Total(expenses []models.Expense) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range expenses {
		sum = sum.Add(amount(e))
	}
	return sum
}

// ByCategory groups expenses by category, largest total first.
func ByCategory(expenses []models.Expense) []CategoryTotal {
	idx := map[string]int{}
	var out []CategoryTotal
	for _, e := range expenses {
		i, ok := idx[e.Category]
		if !ok {
			i = len(out)
			idx[e.Category] = i
			out = append(out, CategoryTotal{Category: e.Category, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(amount(e))
		out[i].Count++
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Total.GreaterThan(out[b].Total) })
	return out
}

// ByUser totals expenses per known user, largest first. Users without
// spending and expenses of unknown users are left out.
func ByUser(users []models.User, expenses []models.Expense) []UserSpending {
	idx := make(map[string]int, len(users))
	out := make([]UserSpending, 0, len(users))
	for _, u := range users {
		idx[u.ID] = len(out)
		out = append(out, UserSpending{UserID: u.ID, Name: u.Name, Total: decimal.Zero, Share: decimal.Zero})
	}

	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(amount(e))
		i, ok := idx[e.UserID]
		if !ok {
			continue
		}
		out[i].Total = out[i].Total.Add(amount(e))
		out[i].Count++
	}

	kept := out[:0]
	for _, s := range out {
		if !s.Total.IsPositive() {
			continue
		}
		if total.IsPositive() {
			s.Share = s.Total.Div(total).Mul(hundred)
		}
		kept = append(kept, s)
	}
	sort.SliceStable(kept, func(a, b int) bool { return kept[a].Total.GreaterThan(kept[b].Total) })
	return kept
}

// Monthly totals expenses per YYYY-MM, oldest first. Expenses with a
// malformed date are skipped.
func Monthly(expenses []models.Expense) []MonthTotal {
	sums := map[string]decimal.Decimal{}
	for _, e := range expenses {
		if len(e.Date) < 7 || e.Date[4] != '-' {
			continue
		}
		m := e.Date[:7]
		if cur, ok := sums[m]; ok {
			sums[m] = cur.Add(amount(e))
		} else {
			sums[m] = amount(e)
		}
	}
	out := make([]MonthTotal, 0, len(sums))
	for m, t := range sums {
		out = append(out, MonthTotal{Month: m, Total: t})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Month < out[b].Month })
	return out
}

// Summarize computes every aggregate at once.
func Summarize(users []models.User, expenses []models.Expense) Summary {
	return Summary{
		Total:      Total(expenses),
		Count:      len(expenses),
		ByCategory: ByCategory(expenses),
		ByUser:     ByUser(users, expenses),
		Monthly:    Monthly(expenses),
	}
}

// FormatCurrency renders d as US dollars with two decimals and thousands
// separators, e.g. $1,234.50.
func FormatCurrency(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() && !d.Round(2).IsZero() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// Initials returns the upper-cased first letters of the first two words of
// name.
func Initials(name string) string {
	var out []rune
	for _, part := range strings.Fields(name) {
		if len(out) == 2 {
			break
		}
		r := []rune(part)[0]
		out = append(out, unicode.ToUpper(r))
	}
	return string(out)
}

// PercentageChange formats the change from previous to current with one
// decimal and an explicit sign. A zero previous value reads as +100%.
func PercentageChange(current, previous decimal.Decimal) string {
	if previous.IsZero() {
		return "+100%"
	}
	change := current.Sub(previous).Div(previous).Mul(hundred)
	sign := ""
	if !change.IsNegative() {
		sign = "+"
	}
	return sign + change.StringFixed(1) + "%"
}
