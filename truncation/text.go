package truncation

import "strings"

const Ellipsis = "..."

type TextResult struct {
	Text         string
	Tokens       int
	Attempts     int
	WithinBudget bool
}

// TruncateText shortens text word by word until count(text) <= budget. The cut
// is marked with an ellipsis. Text that already fits is returned unchanged.
func TruncateText(text string, budget int, count func(string) int, options *Options) TextResult {
	if n := count(text); n <= budget {
		return TextResult{Text: text, Tokens: n, WithinBudget: true}
	}
	words := strings.Fields(text)
	res := Reduce(words, budget, func(head, tail []string) int {
		return count(joinWithEllipsis(head, tail, len(head)+len(tail) < len(words)))
	}, options)
	return TextResult{
		Text:         joinWithEllipsis(res.Head, res.Tail, res.Truncated()),
		Tokens:       res.Tokens,
		Attempts:     res.Attempts,
		WithinBudget: res.WithinBudget,
	}
}

func joinWithEllipsis(head, tail []string, truncated bool) string {
	if !truncated {
		return strings.Join(append(append([]string(nil), head...), tail...), " ")
	}
	parts := make([]string, 0, 3)
	if len(head) > 0 {
		parts = append(parts, strings.Join(head, " "))
	}
	parts = append(parts, Ellipsis)
	if len(tail) > 0 {
		parts = append(parts, strings.Join(tail, " "))
	}
	return strings.Join(parts, " ")
}
