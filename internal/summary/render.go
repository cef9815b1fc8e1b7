// Package summary renders a human-readable spending digest from a list of
// transactions, suitable for delivery over SMS.
package summary

import (
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spendwise/moneytalk/internal/bank"
)

const (
	unknownSource = "unknown source"
	uncategorized = "uncategorized"
)

// Render produces a single textual digest: a header, one block per
// transaction and a trailing total line. An empty input renders zero blocks
// and a total of $0.00.
func Render(txns []bank.Transaction) string {
	var b strings.Builder
	b.WriteString("Your recent transactions:\n")

	var totalCents int64
	for _, txn := range txns {
		totalCents += toCents(txn.Amount)

		fmt.Fprintf(&b, "\n%s on %s\n  %s · %s\n",
			formatUSD(toCents(txn.Amount)),
			formatDate(txn.Date),
			sourceLabel(txn),
			categoryLabel(txn),
		)
	}

	fmt.Fprintf(&b, "\nTotal spent: %s\n", formatUSD(totalCents))
	return b.String()
}

// sourceLabel falls back through merchant name, then payee name, then a
// fixed placeholder.
func sourceLabel(txn bank.Transaction) string {
	if txn.MerchantName != "" {
		return txn.MerchantName
	}
	if txn.Name != "" {
		return txn.Name
	}
	return unknownSource
}

func categoryLabel(txn bank.Transaction) string {
	if len(txn.Category) == 0 {
		return uncategorized
	}
	return strings.Join(txn.Category, " > ")
}

// formatDate renders an ISO calendar date in long human form. A date that
// does not parse is passed through unchanged rather than failing the digest.
func formatDate(iso string) string {
	date, err := civil.ParseDate(iso)
	if err != nil {
		return iso
	}
	return date.In(time.UTC).Format("January 2, 2006")
}

// toCents converts a float amount to integer cents so the running total does
// not drift. Rounding happens once per amount, matching the precision of the
// formatted output.
func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func formatUSD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
