package navigator

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webnavigator/agent"
	"webnavigator/llm"
	"webnavigator/metrics"
	"webnavigator/prompt"
	"webnavigator/session"
	"webnavigator/tokenizer"
	"webnavigator/turn"
)

const uidKey = "data-uid"

var words = tokenizer.CounterFunc(func(s string) int { return len(strings.Fields(s)) })

type fakeModel struct {
	mu     sync.Mutex
	output string
	err    error
	seen   [][]*llm.Message
}

func (f *fakeModel) Complete(_ context.Context, messages []*llm.Message, _ *llm.MessageOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, messages)
	return f.output, f.err
}

func (f *fakeModel) lastSystem() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[len(f.seen)-1][0].Content
}

type fixture struct {
	nav     *Navigator
	model   *fakeModel
	store   *session.Store
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, output string) *fixture {
	m := metrics.MustNew(prometheus.NewRegistry())
	store := session.NewStore(&session.Options{Sessions: m.Sessions})
	model := &fakeModel{output: output}
	a, err := agent.New(prompt.NewAssembler(words, nil), model, nil)
	require.NoError(t, err)
	return &fixture{
		nav:     New(store, a, &Options{Metrics: m}),
		model:   model,
		store:   store,
		metrics: m,
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func chat(utterance string) turn.UserIntent {
	return turn.UserIntent{Intent: "say", Utterance: strPtr(utterance)}
}

var cont = turn.UserIntent{Intent: "continue"}

func loadTurn() *turn.PrevTurn {
	return &turn.PrevTurn{
		Intent: "load",
		HTML:   `<html><body><button data-uid="b1">Buy</button><a data-uid="l2">Help</a></body></html>`,
		BBoxes: map[string]turn.BoundingBox{
			"b1": {X: 0, Y: 0, Width: 20, Height: 20, Left: 0, Top: 0, Right: 20, Bottom: 20},
			"l2": {X: 50, Y: 0, Width: 20, Height: 20, Left: 50, Top: 0, Right: 70, Bottom: 20},
		},
		Metadata: &turn.Metadata{URL: "https://shop.example", ViewportHeight: 100, ViewportWidth: 100},
	}
}

func TestChatOnEmptySession(t *testing.T) {
	f := newFixture(t, `say(speaker="navigator", utterance="Sure")`)
	resp, err := f.nav.NextAction(context.Background(), &Request{
		SessionID:  "s1",
		UserIntent: turn.UserIntent{Intent: "chat", Utterance: strPtr("find the price")},
		UIDKey:     uidKey,
	})
	require.NoError(t, err)
	assert.Equal(t, turn.IntentSay, resp.Intent)
	assert.Equal(t, map[string]any{"speaker": "navigator", "utterance": "Sure"}, resp.Args)
	assert.Nil(t, resp.Element)

	r, _, ok := f.store.Get("s1")
	require.True(t, ok)
	require.Equal(t, 1, r.Len())
	last, err := r.Last()
	require.NoError(t, err)
	assert.Equal(t, 0, last.Index())
	assert.Equal(t, turn.SpeakerInstructor, last.Speaker())
	assert.Equal(t, turn.TypeChat, last.Type())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Sessions))
}

func TestContinueWithoutPrevTurn(t *testing.T) {
	f := newFixture(t, `click(uid="b1")`)
	_, err := f.nav.NextAction(context.Background(), &Request{SessionID: "s1", UserIntent: cont})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoHistory))
	assert.Equal(t, 400, StatusCode(err))
	assert.Equal(t, "User continued and no previous turns.", err.Error())
	assert.Equal(t, 0, f.store.Len())
}

func TestValidationRejectsBeforeMutation(t *testing.T) {
	f := newFixture(t, `click(uid="b1")`)
	prev := loadTurn()
	prev.Intent = "scroll"
	prev.ScrollX = intPtr(0)
	_, err := f.nav.NextAction(context.Background(), &Request{SessionID: "s1", UserIntent: cont, PrevTurn: prev})
	require.Error(t, err)
	assert.Equal(t, 400, StatusCode(err))
	assert.Equal(t, "Field `scrollY` should be in prev_turn if intent is scroll.", err.Error())
	assert.Equal(t, 0, f.store.Len())

	_, err = f.nav.NextAction(context.Background(), &Request{SessionID: "s1", UserIntent: turn.UserIntent{Intent: "say"}})
	assert.Equal(t, 400, StatusCode(err))

	_, err = f.nav.NextAction(context.Background(), &Request{UserIntent: chat("hi")})
	assert.Equal(t, 400, StatusCode(err))
}

func TestContinueResolvesElement(t *testing.T) {
	f := newFixture(t, `click(x=5, y=5)`)
	resp, err := f.nav.NextAction(context.Background(), &Request{
		SessionID: "s1", UserIntent: cont, PrevTurn: loadTurn(), UIDKey: uidKey,
	})
	require.NoError(t, err)
	assert.Equal(t, turn.IntentClick, resp.Intent)
	require.NotNil(t, resp.Element)
	assert.Equal(t, "b1", resp.Element.UID(uidKey))
	assert.Equal(t, "/html/body/button", resp.Element.XPath)

	r, _, _ := f.store.Get("s1")
	require.Equal(t, 1, r.Len())
	last, _ := r.Last()
	assert.Equal(t, turn.IntentLoad, last.Intent())
	assert.Equal(t, 0, last.Index())

	system := f.model.lastSystem()
	assert.Contains(t, system, "(uid = b1)")
	assert.Contains(t, system, "(uid = l2)")
	assert.Contains(t, system, "Viewport size: 100h x 100w ;")
}

func TestBadPredictionRollsBack(t *testing.T) {
	f := newFixture(t, `say(speaker="navigator", utterance="Hi")`)
	_, err := f.nav.NextAction(context.Background(), &Request{SessionID: "s1", UserIntent: chat("hello"), UIDKey: uidKey})
	require.NoError(t, err)

	f.model.output = `click(x=500, y=500)`
	_, err = f.nav.NextAction(context.Background(), &Request{
		SessionID: "s1", UserIntent: cont, PrevTurn: loadTurn(), UIDKey: uidKey,
	})
	require.Error(t, err)
	var bad *BadPredictionError
	require.True(t, errors.As(err, &bad))
	assert.Equal(t, turn.IntentClick, bad.Intent)
	assert.Equal(t, "Bad action - Element not provided when needed", err.Error())
	assert.Equal(t, 400, StatusCode(err))

	r, _, _ := f.store.Get("s1")
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Rollbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Requests.WithLabelValues("click", metrics.OutcomeBadPrediction)))
}

func TestUnparseablePredictionRollsBack(t *testing.T) {
	f := newFixture(t, `I am not sure what to do`)
	_, err := f.nav.NextAction(context.Background(), &Request{SessionID: "s1", UserIntent: chat("hello")})
	require.Error(t, err)
	assert.Equal(t, 400, StatusCode(err))
	r, _, _ := f.store.Get("s1")
	assert.Equal(t, 0, r.Len())
}

func TestModelFailureIsInternalError(t *testing.T) {
	f := newFixture(t, "")
	f.model.err = errors.New("model offline")
	_, err := f.nav.NextAction(context.Background(), &Request{
		SessionID: "s1", UserIntent: cont, PrevTurn: loadTurn(), UIDKey: uidKey,
	})
	require.Error(t, err)
	assert.Equal(t, 500, StatusCode(err))
	assert.Contains(t, err.Error(), "model offline")
	r, _, _ := f.store.Get("s1")
	assert.Equal(t, 0, r.Len())
}

func TestChatInheritsLastPage(t *testing.T) {
	f := newFixture(t, `click(uid="l2")`)
	_, err := f.nav.NextAction(context.Background(), &Request{
		SessionID: "s1", UserIntent: cont, PrevTurn: loadTurn(), UIDKey: uidKey,
	})
	require.NoError(t, err)

	resp, err := f.nav.NextAction(context.Background(), &Request{
		SessionID: "s1", UserIntent: chat("open help"), UIDKey: uidKey,
	})
	require.NoError(t, err)
	assert.Equal(t, "l2", resp.Element.UID(uidKey))
	assert.Equal(t, "/html/body/a", resp.Element.XPath)
	assert.Contains(t, f.model.lastSystem(), "(uid = l2)")

	r, _, _ := f.store.Get("s1")
	require.Equal(t, 2, r.Len())
	last, _ := r.Last()
	assert.Equal(t, turn.SpeakerInstructor, last.Speaker())
	assert.Equal(t, 1, last.Index())
}

func TestChatWithPrevTurnKeepsBoth(t *testing.T) {
	f := newFixture(t, `say(speaker="navigator", utterance="Done")`)
	prev := loadTurn()
	prev.Intent = "click"
	prev.Element = &turn.Element{Attributes: map[string]any{uidKey: "b1"}, TagName: "BUTTON"}
	_, err := f.nav.NextAction(context.Background(), &Request{
		SessionID: "s1", UserIntent: chat("thanks"), PrevTurn: prev, UIDKey: uidKey,
	})
	require.NoError(t, err)

	r, _, _ := f.store.Get("s1")
	turns := r.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, turn.IntentClick, turns[0].Intent())
	assert.Equal(t, turn.SpeakerInstructor, turns[1].Speaker())
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 200, StatusCode(nil))
	assert.Equal(t, 500, StatusCode(errors.New("boom")))
	assert.Equal(t, 400, StatusCode(errors.Wrap(&ValidationError{Err: errors.New("x")}, "ctx")))
}
