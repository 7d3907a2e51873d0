package candidate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FallbackScore marks records ranked in input order because no scores were
// available.
const FallbackScore = -1

// AssignRanks sets the score of each record and its 1-based rank, descending
// by score. Equal scores keep their input order.
func AssignRanks(records []Record, scores []float64) error {
	if len(scores) != len(records) {
		return errors.Errorf("got %d scores for %d records", len(scores), len(records))
	}
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
		records[i].Score = scores[i]
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	for rank, idx := range order {
		records[idx].Rank = rank + 1
	}
	return nil
}

// AssignFallbackRanks ranks records in input order with FallbackScore.
func AssignFallbackRanks(records []Record) {
	for i := range records {
		records[i].Rank = i + 1
		records[i].Score = FallbackScore
	}
}

// SortByRank returns a copy of records ordered best first.
func SortByRank(records []Record) []Record {
	out := append([]Record(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rank < out[j].Rank
	})
	return out
}

// Top returns the k best ranked records, best first.
func Top(records []Record, k int) []Record {
	sorted := SortByRank(records)
	if k >= 0 && len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

func UIDs(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.UID
	}
	return out
}

// FormatEntry renders one record on a single line, labelled by its uid.
func FormatEntry(r Record) string {
	doc := strings.TrimRight(strings.ReplaceAll(r.Doc, "\n", " "), " \t")
	return fmt.Sprintf("(uid = %s) %s\n", r.UID, doc)
}

// FormatList renders records in the given order.
func FormatList(records []Record) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(FormatEntry(r))
	}
	return b.String()
}

// Query is the text the records are ranked against.
func Query(viewportHeight, viewportWidth int, utterances, prevTurns string) string {
	return fmt.Sprintf("Viewport(height=%d, width=%d) ---- Instructor Utterances: %s ---- Previous Turns:%s",
		viewportHeight, viewportWidth, utterances, prevTurns)
}
