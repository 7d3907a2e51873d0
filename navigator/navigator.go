// Package navigator runs one request/response cycle of the navigator: record
// the browser's previous action, pick the turn to act on, rank the page
// elements, ask the model and commit the turn.
package navigator

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"webnavigator/agent"
	"webnavigator/candidate"
	"webnavigator/metrics"
	"webnavigator/prompt"
	"webnavigator/ranker"
	"webnavigator/replay"
	"webnavigator/resolver"
	"webnavigator/session"
	"webnavigator/turn"
)

const DefaultUIDKey = "data-webtasks-id"

// Request is the body of a next action request.
type Request struct {
	SessionID  string          `json:"sessionID"`
	UserIntent turn.UserIntent `json:"user_intent"`
	PrevTurn   *turn.PrevTurn  `json:"prev_turn,omitempty"`
	UIDKey     string          `json:"uid_key"`
}

type Response struct {
	Intent  turn.Intent       `json:"intent"`
	Args    map[string]any    `json:"args"`
	Element *resolver.Element `json:"element"`
}

var ErrNoHistory = errors.New("User continued and no previous turns.")

// ValidationError wraps a request that failed validation before any state
// was touched.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// BadPredictionError is returned when the model output is not an action, or
// names an element intent but no element could be resolved. The replay is
// left as it was.
type BadPredictionError struct {
	Intent turn.Intent
	Raw    string
}

func (e *BadPredictionError) Error() string {
	if e.Intent == turn.IntentUnknown {
		return "Bad action - Model output is not a valid action"
	}
	return "Bad action - Element not provided when needed"
}

// StatusCode maps an error returned by Navigator.NextAction to an HTTP status.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var validation *ValidationError
	var bad *BadPredictionError
	switch {
	case errors.As(err, &validation), errors.As(err, &bad), errors.Is(err, ErrNoHistory):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type Options struct {
	// Ranker ranks candidates. Without one candidates keep page order.
	Ranker *ranker.Ranker
	// NumUtterances and NumPrevTurns shape the ranking query.
	NumUtterances int
	NumPrevTurns  int
	Metrics       *metrics.Metrics
	Logger        *zerolog.Logger
	Now           func() time.Time
}

type Navigator struct {
	store         *session.Store
	agent         *agent.Agent
	ranker        *ranker.Ranker
	numUtterances int
	numPrevTurns  int
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	now           func() time.Time
}

func New(store *session.Store, a *agent.Agent, options *Options) *Navigator {
	n := &Navigator{
		store:         store,
		agent:         a,
		numUtterances: 5,
		numPrevTurns:  5,
		logger:        zerolog.Nop(),
		now:           time.Now,
	}
	if options != nil {
		n.ranker = options.Ranker
		n.metrics = options.Metrics
		if options.NumUtterances > 0 {
			n.numUtterances = options.NumUtterances
		}
		if options.NumPrevTurns > 0 {
			n.numPrevTurns = options.NumPrevTurns
		}
		if options.Logger != nil {
			n.logger = *options.Logger
		}
		if options.Now != nil {
			n.now = options.Now
		}
	}
	if n.ranker == nil {
		n.ranker = ranker.New(ranker.OrderScorer{}, nil)
	}
	return n
}

func (n *Navigator) Store() *session.Store {
	return n.store
}

// Validate checks the request without touching any session.
func Validate(req *Request) error {
	if req.SessionID == "" {
		return &ValidationError{Err: errors.New("Field `sessionID` is required.")}
	}
	if err := turn.ValidateUserIntent(req.UserIntent); err != nil {
		return &ValidationError{Err: err}
	}
	if err := turn.ValidatePrevTurn(req.PrevTurn); err != nil {
		return &ValidationError{Err: err}
	}
	intent, _ := turn.ParseUserIntent(req.UserIntent.Intent)
	if intent == turn.IntentContinue && req.PrevTurn == nil {
		return ErrNoHistory
	}
	return nil
}

// NextAction runs the request under the session lock. Any failure restores
// the replay to its state before the request.
func (n *Navigator) NextAction(ctx context.Context, req *Request) (resp *Response, err error) {
	start := n.now()
	outcome := metrics.OutcomeOK
	var predicted turn.Intent
	defer func() {
		n.metrics.ObserveRequest(string(predicted), outcome, n.now().Sub(start))
	}()

	if err := Validate(req); err != nil {
		outcome = metrics.OutcomeInvalid
		return nil, err
	}
	uidKey := req.UIDKey
	if uidKey == "" {
		uidKey = DefaultUIDKey
	}
	base := n.logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		base = *l
	}
	logger := base.With().Str("session_id", req.SessionID).Logger()

	r, unlock := n.store.Acquire(req.SessionID)
	defer unlock()
	logger.Info().Int("turns", r.Len()).Msg("current replay")

	cp := r.Checkpoint()
	defer func() {
		if err != nil {
			r.Restore(cp)
			n.metrics.Rollback()
		}
	}()

	if req.PrevTurn != nil {
		r.BuildAndAppendAction(*req.PrevTurn)
	}
	current, err := n.currentTurn(r, req.UserIntent)
	if err != nil {
		outcome = metrics.OutcomeInvalid
		return nil, err
	}

	page := current.Page()
	if page == nil {
		page = r.LastPage()
	}
	in := prompt.Input{Replay: r, Current: current, Page: page, UIDKey: uidKey}
	if page.HasHTML() && page.HasBBoxes() {
		records, err := candidate.BuildRecords(page, uidKey)
		if err != nil {
			outcome = metrics.OutcomeError
			return nil, errors.Wrap(err, "build candidate records")
		}
		query := prompt.Query(r, current, page, n.numUtterances, n.numPrevTurns)
		n.ranker.Rank(ctx, query, records)
		in.Candidates = records
	}

	pred, err := n.agent.NextAction(ctx, in)
	if err != nil {
		outcome = metrics.OutcomeError
		return nil, errors.Wrap(err, "predict next action")
	}
	predicted = pred.Intent
	tokens := make(map[string]int, len(pred.Prompt.Tokens))
	for seg, v := range pred.Prompt.Tokens {
		tokens[string(seg)] = v
	}
	n.metrics.ObservePromptTokens(tokens)

	if !pred.Executable() {
		outcome = metrics.OutcomeBadPrediction
		logger.Warn().Str("intent", string(pred.Intent)).Str("output", pred.Raw).Msg("bad prediction, rolling back")
		return nil, &BadPredictionError{Intent: pred.Intent, Raw: pred.Raw}
	}

	r.Append(current)
	logger.Info().
		Str("intent", string(pred.Intent)).
		Interface("args", pred.Args).
		Str("uid", pred.Element.UID(uidKey)).
		Msg("predicted")
	return &Response{Intent: pred.Intent, Args: pred.Args, Element: pred.Element}, nil
}

// currentTurn is the instructor turn for a chat message, or the navigator
// turn just recorded, taken back out of the replay, for a continue.
func (n *Navigator) currentTurn(r *replay.Replay, u turn.UserIntent) (turn.Turn, error) {
	intent, _ := turn.ParseUserIntent(u.Intent)
	if intent == turn.IntentChat {
		return r.BuildInstructor(u), nil
	}
	t, err := r.RemoveLast()
	if err != nil {
		return nil, errors.Wrap(ErrNoHistory, err.Error())
	}
	return t, nil
}
