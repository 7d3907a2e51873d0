package replay

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"webnavigator/turn"
)

var ErrEmptyReplay = errors.New("replay has no turns")

// IndexOutOfRangeError carries the valid range for the failed lookup.
type IndexOutOfRangeError struct {
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	if e.Len == 0 {
		return fmt.Sprintf("turn index %d out of range: replay is empty", e.Index)
	}
	return fmt.Sprintf("turn index %d out of range [%d, %d)", e.Index, -e.Len, e.Len)
}

// Replay is the ordered turn history of one session.
//
// Turns live in an append-only log. Only the first committed entries are part
// of the replay; RemoveLast moves the pointer back without discarding the log
// entry, and the next Append overwrites it.
type Replay struct {
	sessionID string
	log       []turn.Turn
	committed int
	now       func() time.Time
}

type Options struct {
	// Now stamps built turns. Defaults to time.Now.
	Now func() time.Time
}

func New(sessionID string, options *Options) *Replay {
	now := time.Now
	if options != nil && options.Now != nil {
		now = options.Now
	}
	return &Replay{
		sessionID: sessionID,
		now:       now,
	}
}

func (r *Replay) SessionID() string {
	return r.sessionID
}

func (r *Replay) Len() int {
	return r.committed
}

// Append assigns the next index to t and commits it.
func (r *Replay) Append(t turn.Turn) {
	t.SetIndex(r.committed)
	if r.committed < len(r.log) {
		r.log[r.committed] = t
		r.log = r.log[:r.committed+1]
	} else {
		r.log = append(r.log, t)
	}
	r.committed++
}

func (r *Replay) RemoveLast() (turn.Turn, error) {
	if r.committed == 0 {
		return nil, ErrEmptyReplay
	}
	r.committed--
	return r.log[r.committed], nil
}

func (r *Replay) Last() (turn.Turn, error) {
	if r.committed == 0 {
		return nil, ErrEmptyReplay
	}
	return r.log[r.committed-1], nil
}

// At returns the turn at i. Negative indices count from the end.
func (r *Replay) At(i int) (turn.Turn, error) {
	idx := i
	if idx < 0 {
		idx += r.committed
	}
	if idx < 0 || idx >= r.committed {
		return nil, &IndexOutOfRangeError{Index: i, Len: r.committed}
	}
	return r.log[idx], nil
}

// Slice returns turns[start:end] with the clamping and negative index rules
// of a sequence slice. It never fails.
func (r *Replay) Slice(start, end int) []turn.Turn {
	start = r.clamp(start)
	end = r.clamp(end)
	if start >= end {
		return []turn.Turn{}
	}
	out := make([]turn.Turn, end-start)
	copy(out, r.log[start:end])
	return out
}

func (r *Replay) clamp(i int) int {
	if i < 0 {
		i += r.committed
		if i < 0 {
			return 0
		}
	}
	if i > r.committed {
		return r.committed
	}
	return i
}

// Turns returns a copy of the committed turns.
func (r *Replay) Turns() []turn.Turn {
	return r.Slice(0, r.committed)
}

// BuildInstructor constructs an instructor turn with the tentative next index
// without committing it.
func (r *Replay) BuildInstructor(u turn.UserIntent) *turn.InstructorTurn {
	return turn.NewInstructorTurn(u, r.committed, r.now())
}

// BuildAction constructs a navigator turn with the tentative next index
// without committing it.
func (r *Replay) BuildAction(p turn.PrevTurn) *turn.ActionTurn {
	return turn.NewActionTurn(p, r.committed, r.now())
}

func (r *Replay) BuildAndAppendInstructor(u turn.UserIntent) *turn.InstructorTurn {
	t := r.BuildInstructor(u)
	r.Append(t)
	return t
}

func (r *Replay) BuildAndAppendAction(p turn.PrevTurn) *turn.ActionTurn {
	t := r.BuildAction(p)
	r.Append(t)
	return t
}

// Checkpoint marks the current committed length so a failed request can undo
// every mutation it made.
type Checkpoint struct {
	committed int
	log       []turn.Turn
}

func (r *Replay) Checkpoint() Checkpoint {
	return Checkpoint{
		committed: r.committed,
		log:       append([]turn.Turn(nil), r.log[:r.committed]...),
	}
}

// Restore rolls the replay back to cp. Turns removed since the checkpoint are
// put back with their original indices.
func (r *Replay) Restore(cp Checkpoint) {
	r.log = append(r.log[:0:0], cp.log...)
	r.committed = cp.committed
	for i, t := range r.log {
		t.SetIndex(i)
	}
}

// LastPage returns the page of the most recent turn that carries one.
func (r *Replay) LastPage() *turn.Page {
	for i := r.committed - 1; i >= 0; i-- {
		if p := r.log[i].Page(); p != nil {
			return p
		}
	}
	return nil
}
