// Package truncation shrinks content until a measured size fits a budget.
//
// Content is a sequence of units (words, list entries, tree nodes). A
// reduction removes one contiguous run of units, so the result is always a
// kept head followed by a kept tail. The measure function sees both halves and
// decides how they are rendered, for example with an ellipsis in between.
package truncation

import "github.com/pkg/errors"

type Side int

const (
	// SideCenter removes units from the middle outwards.
	SideCenter Side = iota
	// SideLeft removes the oldest units first.
	SideLeft
	// SideRight removes the newest units first.
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "center"
	}
}

func ParseSide(s string) (Side, error) {
	switch s {
	case "", "center":
		return SideCenter, nil
	case "left":
		return SideLeft, nil
	case "right":
		return SideRight, nil
	default:
		return SideCenter, errors.Errorf("unknown truncation side: %s", s)
	}
}

const DefaultMaxAttempts = 20

type Options struct {
	Side Side
	// MaxAttempts bounds the number of re-measurements. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int
	// AllowIterativeReduction keeps removing one unit at a time when a
	// removal does not lower the measured size. Without it the reduction stops
	// at the first removal that makes no progress.
	AllowIterativeReduction bool
}

type Result[T any] struct {
	Head         []T
	Tail         []T
	Tokens       int
	Attempts     int
	WithinBudget bool

	removed bool
}

// Units returns head and tail joined.
func (r Result[T]) Units() []T {
	out := make([]T, 0, len(r.Head)+len(r.Tail))
	out = append(out, r.Head...)
	return append(out, r.Tail...)
}

// Truncated reports whether any unit was removed.
func (r Result[T]) Truncated() bool {
	return r.removed
}

// Measure returns the size of the content made of head followed by tail.
// When nothing has been removed head holds every unit and tail is empty.
type Measure[T any] func(head, tail []T) int

// Reduce removes units from units until measure reports at most budget or the
// attempt cap is reached. Content that already fits is returned unchanged
// with zero attempts. The returned size never exceeds the original size.
func Reduce[T any](units []T, budget int, measure Measure[T], options *Options) Result[T] {
	opts := Options{}
	if options != nil {
		opts = *options
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	tokens := measure(units, nil)
	best := Result[T]{
		Head:         units,
		Tail:         nil,
		Tokens:       tokens,
		WithinBudget: tokens <= budget,
	}
	if best.WithinBudget || len(units) == 0 {
		return best
	}

	// kept content is units[:i] + units[j:]
	var i, j int
	switch opts.Side {
	case SideLeft:
		i, j = 0, 0
	case SideRight:
		i, j = len(units), len(units)
	default:
		i, j = len(units)/2, len(units)/2
	}
	prev := tokens
	oneAtATime := false
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		remaining := i + len(units) - j
		if remaining == 0 {
			break
		}
		k := 1
		if !oneAtATime {
			k = estimateRemoval(remaining, prev, budget)
		}
		i, j = cut(len(units), i, j, k, opts.Side)
		head, tail := units[:i], units[j:]
		n := measure(head, tail)
		best.Attempts = attempt
		if n <= best.Tokens {
			best.Head, best.Tail, best.Tokens = head, tail, n
			best.removed = true
		}
		if n <= budget {
			best.WithinBudget = true
			break
		}
		if n >= prev {
			if !opts.AllowIterativeReduction {
				break
			}
			oneAtATime = true
		} else {
			oneAtATime = false
		}
		prev = n
	}
	return best
}

// estimateRemoval assumes size grows linearly with the number of units.
func estimateRemoval(remaining, tokens, budget int) int {
	if tokens <= 0 {
		return 1
	}
	over := tokens - budget
	k := (remaining*over + tokens - 1) / tokens
	if k < 1 {
		k = 1
	}
	if k > remaining {
		k = remaining
	}
	return k
}

// cut removes k more units from the kept content units[:i] + units[j:] of a
// sequence of length n and returns the new bounds.
func cut(n, i, j, k int, side Side) (int, int) {
	tailLen := n - j
	keep := i + tailLen - k
	if keep < 0 {
		keep = 0
	}
	switch side {
	case SideLeft:
		return 0, n - keep
	case SideRight:
		return keep, n
	}
	headLen := (keep + 1) / 2
	if headLen > i {
		headLen = i
	}
	newTail := keep - headLen
	if newTail > tailLen {
		newTail = tailLen
		headLen = keep - newTail
	}
	return headLen, n - newTail
}
