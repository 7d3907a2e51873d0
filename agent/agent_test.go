package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webnavigator/llm"
	"webnavigator/prompt"
	"webnavigator/replay"
	"webnavigator/tokenizer"
	"webnavigator/turn"
)

const uidKey = "data-uid"

var words = tokenizer.CounterFunc(func(s string) int { return len(strings.Fields(s)) })

// scripted replies with the next canned output on every call
type scripted struct {
	outputs []string
	calls   [][]*llm.Message
	err     error
}

func (s *scripted) Complete(_ context.Context, messages []*llm.Message, _ *llm.MessageOptions) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.calls = append(s.calls, append([]*llm.Message(nil), messages...))
	out := s.outputs[0]
	if len(s.outputs) > 1 {
		s.outputs = s.outputs[1:]
	}
	return out, nil
}

func input() prompt.Input {
	r := replay.New("s1", nil)
	u := "buy it"
	current := r.BuildInstructor(turn.UserIntent{Intent: "say", Utterance: &u})
	return prompt.Input{
		Replay:  r,
		Current: current,
		Page: &turn.Page{
			HTML: `<html><body><button data-uid="b1">Buy</button></body></html>`,
			BBoxes: map[string]turn.BoundingBox{
				"b1": {X: 0, Y: 0, Width: 10, Height: 10, Left: 0, Top: 0, Right: 10, Bottom: 10},
			},
			Metadata: &turn.Metadata{ViewportHeight: 100, ViewportWidth: 100},
		},
		UIDKey: uidKey,
	}
}

func newAgent(t *testing.T, c llm.Completer, options *Options) *Agent {
	a, err := New(prompt.NewAssembler(words, nil), c, options)
	require.NoError(t, err)
	return a
}

func TestNextActionResolvesElement(t *testing.T) {
	c := &scripted{outputs: []string{`click(x=5, y=5)`}}
	pred, err := newAgent(t, c, nil).NextAction(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, turn.IntentClick, pred.Intent)
	require.NotNil(t, pred.Element)
	assert.Equal(t, "b1", pred.Element.UID(uidKey))
	assert.True(t, pred.Executable())
	assert.Equal(t, 1, pred.Attempts)
	require.Len(t, c.calls, 1)
	assert.Equal(t, llm.MessageRoleSystem, c.calls[0][0].Role)
}

func TestNextActionBaseDoesNotRetry(t *testing.T) {
	c := &scripted{outputs: []string{`click(x=50, y=50)`, `click(uid="b1")`}}
	pred, err := newAgent(t, c, nil).NextAction(context.Background(), input())
	require.NoError(t, err)
	assert.Nil(t, pred.Element)
	assert.False(t, pred.Executable())
	assert.Len(t, c.calls, 1)
}

func TestNextActionRetryFeedsBackFailure(t *testing.T) {
	c := &scripted{outputs: []string{`I think so`, `click(uid="b1")`}}
	pred, err := newAgent(t, c, &Options{Strategy: StrategyRetry}).NextAction(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, 2, pred.Attempts)
	assert.Equal(t, "b1", pred.Element.UID(uidKey))

	require.Len(t, c.calls, 2)
	second := c.calls[1]
	n := len(second)
	assert.Equal(t, &llm.Message{Role: llm.MessageRoleAssistant, Content: "I think so"}, second[n-2])
	assert.Equal(t, llm.MessageRoleUser, second[n-1].Role)
	assert.True(t, strings.HasPrefix(second[n-1].Content, "That is not a valid action."))
}

func TestNextActionRetryGivesUp(t *testing.T) {
	c := &scripted{outputs: []string{`hover(uid="b1")`}}
	pred, err := newAgent(t, c, &Options{Strategy: StrategyRetry, MaxAttempts: 2}).NextAction(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, turn.IntentUnknown, pred.Intent)
	assert.Equal(t, 2, pred.Attempts)
	assert.Len(t, c.calls, 2)
}

func TestNextActionModelError(t *testing.T) {
	c := &scripted{err: errors.New("connection refused")}
	_, err := newAgent(t, c, nil).NextAction(context.Background(), input())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNonElementIntentIsExecutable(t *testing.T) {
	c := &scripted{outputs: []string{`say(speaker="navigator", utterance="Done")`}}
	pred, err := newAgent(t, c, nil).NextAction(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, turn.IntentSay, pred.Intent)
	assert.Nil(t, pred.Element)
	assert.True(t, pred.Executable())
	assert.Equal(t, map[string]any{"speaker": "navigator", "utterance": "Done"}, pred.Args)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("retry")
	require.NoError(t, err)
	assert.Equal(t, StrategyRetry, s)
	_, err = ParseStrategy("reflexion")
	assert.Error(t, err)
	_, err = New(prompt.NewAssembler(words, nil), &scripted{}, &Options{Strategy: "nope"})
	assert.Error(t, err)
}
