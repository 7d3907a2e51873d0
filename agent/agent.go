// Package agent turns a prompt into a predicted navigator action and the page
// element it acts on.
package agent

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"webnavigator/action"
	"webnavigator/llm"
	"webnavigator/prompt"
	"webnavigator/resolver"
	"webnavigator/turn"
)

type StrategyID string

const (
	// StrategyBase asks the model once.
	StrategyBase StrategyID = "base"
	// StrategyRetry asks again with feedback when the reply cannot be
	// executed, up to MaxAttempts times.
	StrategyRetry StrategyID = "retry"
)

const DefaultStrategy = StrategyBase

const (
	DefaultMaxAttempts  = 3
	DefaultMaxOutTokens = 256
)

func ParseStrategy(s string) (StrategyID, error) {
	switch StrategyID(s) {
	case StrategyBase, "":
		return StrategyBase, nil
	case StrategyRetry:
		return StrategyRetry, nil
	}
	return "", errors.Errorf("invalid agent strategy ID: %s", s)
}

type Options struct {
	Strategy    StrategyID
	MaxAttempts int
	// MessageOptions are passed to the model. Defaults to greedy decoding
	// with DefaultMaxOutTokens.
	MessageOptions *llm.MessageOptions
	Logger         *zerolog.Logger
}

type Agent struct {
	assembler      *prompt.Assembler
	completer      llm.Completer
	maxAttempts    int
	messageOptions llm.MessageOptions
	logger         zerolog.Logger
}

func New(assembler *prompt.Assembler, completer llm.Completer, options *Options) (*Agent, error) {
	if assembler == nil || completer == nil {
		return nil, errors.New("agent needs a prompt assembler and a completer")
	}
	a := &Agent{
		assembler:      assembler,
		completer:      completer,
		maxAttempts:    1,
		messageOptions: llm.MessageOptions{MaxTokens: DefaultMaxOutTokens},
		logger:         zerolog.Nop(),
	}
	if options == nil {
		return a, nil
	}
	strategy, err := ParseStrategy(string(options.Strategy))
	if err != nil {
		return nil, err
	}
	if strategy == StrategyRetry {
		a.maxAttempts = DefaultMaxAttempts
		if options.MaxAttempts > 0 {
			a.maxAttempts = options.MaxAttempts
		}
	}
	if options.MessageOptions != nil {
		a.messageOptions = *options.MessageOptions
	}
	if options.Logger != nil {
		a.logger = *options.Logger
	}
	return a, nil
}

// Prediction is the parsed model reply. Element is nil when the intent does
// not act on an element or no element could be resolved.
type Prediction struct {
	Intent   turn.Intent
	Args     map[string]any
	Element  *resolver.Element
	Raw      string
	Attempts int
	Prompt   *prompt.Result
}

// Executable reports whether the prediction names a known intent and, for
// element intents, a resolved element.
func (p *Prediction) Executable() bool {
	if p.Intent == turn.IntentUnknown {
		return false
	}
	return !p.Intent.IsElementIntent() || p.Element != nil
}

func (a *Agent) BuildPrompt(in prompt.Input) (*prompt.Result, error) {
	return a.assembler.Build(in)
}

// NextAction builds the prompt, asks the model and resolves the reply against
// the page. A reply that cannot be executed is still returned; only model and
// prompt failures are errors.
func (a *Agent) NextAction(ctx context.Context, in prompt.Input) (*Prediction, error) {
	built, err := a.BuildPrompt(in)
	if err != nil {
		return nil, errors.Wrap(err, "build prompt")
	}
	messages := built.Messages
	var pred *Prediction
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		text, err := a.completer.Complete(ctx, messages, &a.messageOptions)
		if err != nil {
			return nil, errors.Wrap(err, "generate action")
		}
		pred = a.predict(text, in)
		pred.Attempts = attempt
		pred.Prompt = built
		if pred.Executable() {
			break
		}
		a.logger.Debug().
			Int("attempt", attempt).
			Str("output", text).
			Msg("model output cannot be executed")
		messages = append(messages,
			&llm.Message{Role: llm.MessageRoleAssistant, Content: text},
			&llm.Message{Role: llm.MessageRoleUser, Content: feedback(pred)},
		)
	}
	return pred, nil
}

func (a *Agent) predict(text string, in prompt.Input) *Prediction {
	parsed := action.Parse(text)
	return &Prediction{
		Intent:  parsed.Intent,
		Args:    parsed.Args,
		Element: resolver.Resolve(parsed.Intent, parsed.Args, in.Page, in.UIDKey),
		Raw:     text,
	}
}

func feedback(p *Prediction) string {
	if p.Intent == turn.IntentUnknown {
		return "That is not a valid action. " + prompt.FinalUserMessage
	}
	return fmt.Sprintf("No element on the page matches %s. %s", p.Intent.GrammarName(), prompt.FinalUserMessage)
}
