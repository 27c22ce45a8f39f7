package ledger

import (
	"strconv"
	"strings"
	"time"
)

// SearchMovements filters a detail view by a free-text query. A movement
// matches when the query is found, case-insensitively, in its number,
// amount, date (YYYY-MM-DD in loc), note, or sender/beneficiary name.
// An empty query returns the input unchanged.
func SearchMovements(movements []Movement, query string, loc *time.Location) []Movement {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return movements
	}
	if loc == nil {
		loc = time.UTC
	}

	out := make([]Movement, 0, len(movements))
	for _, m := range movements {
		if movementMatches(m, q, loc) {
			out = append(out, m)
		}
	}
	return out
}

func movementMatches(m Movement, q string, loc *time.Location) bool {
	fields := []string{
		strconv.FormatInt(m.Number, 10),
		m.Amount().String(),
		m.Amount().StringFixed(2),
		m.CreatedAt.In(loc).Format("2006-01-02"),
		m.Note,
		m.SenderName,
		m.BeneficiaryName,
	}
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
