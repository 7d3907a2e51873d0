// Package runner drives a browser with the navigator: the instructor chats or
// continues, the navigator predicts, the browser acts and reports back.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"webnavigator/browser"
	"webnavigator/navigator"
	"webnavigator/turn"
	"webnavigator/utils/io"
)

type Navigator interface {
	NextAction(ctx context.Context, req *navigator.Request) (*navigator.Response, error)
}

type Browser interface {
	UIDKey() string
	Execute(a browser.Action) (*turn.PrevTurn, error)
}

type EventKind string

const (
	EventInstructor EventKind = "instructor"
	EventNavigator  EventKind = "navigator"
	EventAction     EventKind = "action"
	EventError      EventKind = "error"
)

type Event struct {
	Kind EventKind `json:"kind"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}

type Options struct {
	SessionID string
	Logger    *zerolog.Logger
	Now       func() time.Time
}

type Runner struct {
	nav       Navigator
	browser   Browser
	sessionID string
	// prev is the browser turn not yet reported to the navigator.
	prev       *turn.PrevTurn
	transcript []Event
	logger     zerolog.Logger
	now        func() time.Time
}

func New(nav Navigator, b Browser, options *Options) *Runner {
	r := &Runner{
		nav:       nav,
		browser:   b,
		sessionID: "shell",
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	if options != nil {
		if options.SessionID != "" {
			r.sessionID = options.SessionID
		}
		if options.Logger != nil {
			r.logger = *options.Logger
		}
		if options.Now != nil {
			r.now = options.Now
		}
	}
	return r
}

func (r *Runner) SessionID() string {
	return r.sessionID
}

// Start loads url and keeps the load as the first turn to report.
func (r *Runner) Start(url string) error {
	prev, err := r.browser.Execute(browser.Action{Intent: turn.IntentLoad, Args: map[string]any{"url": url}})
	if err != nil {
		r.record(EventError, err.Error())
		return errors.Wrapf(err, "load %s", url)
	}
	r.prev = prev
	r.record(EventAction, fmt.Sprintf("load(url=%q)", url))
	return nil
}

// Chat sends an instructor message and carries out the predicted action.
func (r *Runner) Chat(ctx context.Context, utterance string) (*navigator.Response, error) {
	r.record(EventInstructor, utterance)
	return r.step(ctx, turn.UserIntent{Intent: string(turn.IntentSay), Utterance: &utterance})
}

// Continue asks the navigator for its next action without a new message.
func (r *Runner) Continue(ctx context.Context) (*navigator.Response, error) {
	return r.step(ctx, turn.UserIntent{Intent: string(turn.IntentContinue)})
}

func (r *Runner) step(ctx context.Context, intent turn.UserIntent) (*navigator.Response, error) {
	resp, err := r.nav.NextAction(ctx, &navigator.Request{
		SessionID:  r.sessionID,
		UserIntent: intent,
		PrevTurn:   r.prev,
		UIDKey:     r.browser.UIDKey(),
	})
	if err != nil {
		// The navigator rolled back, so the pending turn is sent again next time.
		r.record(EventError, err.Error())
		return nil, err
	}
	r.prev = nil

	a := browser.Action{Intent: resp.Intent, Args: resp.Args}
	if resp.Element != nil {
		a.UID = resp.Element.UID(r.browser.UIDKey())
		a.XPath = resp.Element.XPath
	}
	if resp.Intent == turn.IntentSay {
		r.record(EventNavigator, browser.StringArg(resp.Args, "utterance"))
	} else {
		r.record(EventAction, describe(a))
	}

	prev, err := r.browser.Execute(a)
	if err != nil {
		r.record(EventError, err.Error())
		r.logger.Warn().Err(err).Str("intent", string(a.Intent)).Msg("browser failed to perform action")
		return resp, errors.Wrap(err, "perform action")
	}
	r.prev = prev
	return resp, nil
}

func describe(a browser.Action) string {
	switch a.Intent {
	case turn.IntentLoad:
		return fmt.Sprintf("load(url=%q)", browser.StringArg(a.Args, "url"))
	case turn.IntentScroll:
		return fmt.Sprintf("scroll(x=%d, y=%d)", browser.IntArg(a.Args, "x"), browser.IntArg(a.Args, "y"))
	case turn.IntentTextInput:
		return fmt.Sprintf("text_input(text=%q, uid=%q)", browser.StringArg(a.Args, "text"), a.UID)
	case turn.IntentChange:
		return fmt.Sprintf("change(value=%q, uid=%q)", browser.StringArg(a.Args, "value"), a.UID)
	default:
		return fmt.Sprintf("%s(uid=%q)", a.Intent, a.UID)
	}
}

func (r *Runner) record(kind EventKind, text string) {
	r.transcript = append(r.transcript, Event{Kind: kind, Text: text, Time: r.now()})
}

func (r *Runner) Transcript() []Event {
	return append([]Event(nil), r.transcript...)
}

// Log writes the transcript to path as JSON.
func (r *Runner) Log(path string) error {
	return io.WriteStructToFile(path, struct {
		SessionID  string  `json:"session_id"`
		Transcript []Event `json:"transcript"`
	}{r.sessionID, r.transcript})
}
