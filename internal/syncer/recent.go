package syncer

import (
	"sort"

	"github.com/spendwise/moneytalk/internal/bank"
)

// RecentLimit is how many of the newest transactions are reported back to the
// caller and included in the SMS summary.
const RecentLimit = 10

// Recent returns the last limit transactions ordered by date ascending.
//
// Dates are compared as ISO calendar strings, which sort chronologically
// without parsing. The sort is stable so transactions sharing a date keep
// their arrival order. The input slice is not modified.
func Recent(txns []bank.Transaction, limit int) []bank.Transaction {
	sorted := make([]bank.Transaction, len(txns))
	copy(sorted, txns)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date < sorted[j].Date
	})

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted
}
