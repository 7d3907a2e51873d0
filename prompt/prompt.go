// Package prompt assembles the bounded message sequence sent to the action
// model: page tree, instruction, utterance context, prior turns and ranked
// candidates, each fitted into its own token budget.
package prompt

import (
	_ "embed"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"webnavigator/action"
	"webnavigator/candidate"
	"webnavigator/domtree"
	"webnavigator/llm"
	"webnavigator/replay"
	"webnavigator/tokenizer"
	"webnavigator/truncation"
	"webnavigator/turn"
)

//go:embed system_prompt.txt
var systemPromptTemplate string

var systemPrompt = template.Must(template.New("system").Parse(strings.TrimRight(systemPromptTemplate, "\n")))

const (
	candidatePromptPrefix = "Here are the top candidates for this turn: "
	FinalUserMessage      = "Please select the best action using the correct format, do not provide any other information or explanation."
	utteranceSeparator    = " ; "
)

type Segment string

const (
	SegmentHTML       Segment = "html"
	SegmentUtterances Segment = "utterances"
	SegmentPrevTurns  Segment = "prev_turns"
	SegmentCandidates Segment = "candidates"
)

func Segments() []Segment {
	return []Segment{SegmentHTML, SegmentUtterances, SegmentPrevTurns, SegmentCandidates}
}

type Options struct {
	MaxHTMLTokens       int
	MaxUtteranceTokens  int
	MaxPrevTurnsTokens  int
	MaxCandidatesTokens int
	// NumUtterances is how many instructor utterances enter the context.
	NumUtterances int
	NumPrevTurns  int
	// MaxCandidates bounds the ranked candidates considered at all.
	MaxCandidates int
	// MaxAttempts bounds the prior-turn reduction.
	MaxAttempts             int
	AddUnusedLenToCands     bool
	AllowIterativeReduction bool
	IncludeHTML             bool
	Logger                  *zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxHTMLTokens:       700,
		MaxUtteranceTokens:  200,
		MaxPrevTurnsTokens:  250,
		MaxCandidatesTokens: 650,
		NumUtterances:       5,
		NumPrevTurns:        5,
		MaxCandidates:       20,
		MaxAttempts:         5,
		AddUnusedLenToCands: true,
		IncludeHTML:         true,
	}
}

type Assembler struct {
	counter tokenizer.Counter
	opts    Options
	logger  zerolog.Logger
}

// NewAssembler uses DefaultOptions when options is nil.
func NewAssembler(counter tokenizer.Counter, options *Options) *Assembler {
	opts := DefaultOptions()
	if options != nil {
		opts = *options
	}
	a := &Assembler{counter: counter, opts: opts, logger: zerolog.Nop()}
	if opts.Logger != nil {
		a.logger = *opts.Logger
	}
	return a
}

func (a *Assembler) Options() Options {
	return a.opts
}

// Input is everything a prompt is built from. Replay holds the turns before
// Current. Page is the page the action applies to, which may be inherited
// from an earlier turn. Candidates may be nil.
type Input struct {
	Replay     *replay.Replay
	Current    turn.Turn
	Page       *turn.Page
	Candidates []candidate.Record
	UIDKey     string
}

type Result struct {
	Messages []*llm.Message
	// Tokens is the measured size of each segment after truncation.
	Tokens map[Segment]int
	// CandidatesBudget is the candidate budget after reallocation.
	CandidatesBudget int
	// Candidates are the records shown to the model, best first.
	Candidates []candidate.Record
	// WithinBudget is false for segments that could not be fitted.
	WithinBudget map[Segment]bool
}

func (a *Assembler) count(text string) int {
	return a.counter.Count(text)
}

func (a *Assembler) reductionOptions(side truncation.Side, maxAttempts int) *truncation.Options {
	return &truncation.Options{
		Side:                    side,
		MaxAttempts:             maxAttempts,
		AllowIterativeReduction: a.opts.AllowIterativeReduction,
	}
}

// Build assembles the system segment followed by the merged prior turns. The
// second message is always a user message.
func (a *Assembler) Build(in Input) (*Result, error) {
	if in.Replay == nil || in.Current == nil {
		return nil, errors.New("replay and current turn are required")
	}
	res := &Result{
		Tokens:       make(map[Segment]int, 4),
		WithinBudget: make(map[Segment]bool, 4),
	}

	utterances := a.utteranceContext(in.Replay, in.Current)
	res.Tokens[SegmentUtterances] = utterances.Tokens
	res.WithinBudget[SegmentUtterances] = utterances.WithinBudget

	prevTurns, prevWithin := a.prevTurns(in.Replay, in.UIDKey)
	joinedPrev := strings.Join(prevTurns, " ")
	res.Tokens[SegmentPrevTurns] = a.count(joinedPrev)
	res.WithinBudget[SegmentPrevTurns] = prevWithin

	// An instructor message closes the prompt in place of the fixed
	// instruction.
	final := FinalUserMessage
	if in.Current.Speaker() == turn.SpeakerInstructor && in.Current.Intent().IsChat() {
		final = in.Current.Utterance()
	}
	merged := MergePrevTurns(prevTurns, final)

	var sys strings.Builder
	if err := systemPrompt.Execute(&sys, map[string]any{
		"NumUtterances":    a.opts.NumUtterances - 1,
		"UtteranceContext": utterances.Text,
		"Height":           in.Page.ViewportHeight(),
		"Width":            in.Page.ViewportWidth(),
		"NumPrevTurns":     a.opts.NumPrevTurns,
	}); err != nil {
		return nil, errors.Wrap(err, "render system prompt")
	}
	system := sys.String()

	top := candidate.Top(in.Candidates, a.opts.MaxCandidates)
	html := ""
	if a.opts.IncludeHTML && in.Page.HasHTML() && in.Candidates != nil {
		tree, err := a.domTree(in.Page.HTML, in.UIDKey, top)
		if err != nil {
			return nil, err
		}
		html = tree.Text
		res.WithinBudget[SegmentHTML] = tree.WithinBudget
		system = html + system
	}
	res.Tokens[SegmentHTML] = a.count(html)

	if in.Candidates != nil {
		budget := a.opts.MaxCandidatesTokens
		if a.opts.AddUnusedLenToCands {
			budget += a.opts.MaxHTMLTokens - res.Tokens[SegmentHTML]
			budget += a.opts.MaxUtteranceTokens - res.Tokens[SegmentUtterances]
			budget += a.opts.MaxPrevTurnsTokens - res.Tokens[SegmentPrevTurns]
		}
		res.CandidatesBudget = budget
		kept, within := a.truncateCandidates(top, budget)
		res.Candidates = kept
		list := candidate.FormatList(kept)
		res.Tokens[SegmentCandidates] = a.count(list)
		res.WithinBudget[SegmentCandidates] = within
		system += "\n" + candidatePromptPrefix + list + "\n"
	}

	for seg, ok := range res.WithinBudget {
		if !ok {
			a.logger.Debug().Str("segment", string(seg)).Int("tokens", res.Tokens[seg]).Msg("segment over budget")
		}
	}

	res.Messages = append([]*llm.Message{{Role: llm.MessageRoleSystem, Content: system}}, merged...)
	res.Messages = InsertEmptyUserFirst(res.Messages)
	return res, nil
}

// utteranceContext joins the selected instructor utterances and truncates
// them at the center.
func (a *Assembler) utteranceContext(r *replay.Replay, current turn.Turn) truncation.TextResult {
	text := strings.Join(Utterances(r, current, a.opts.NumUtterances), utteranceSeparator)
	return truncation.TruncateText(text, a.opts.MaxUtteranceTokens, a.count, a.reductionOptions(truncation.SideCenter, 0))
}

// Utterances returns the instructor chat utterances up to and including
// current: the first k-1 and the most recent one.
func Utterances(r *replay.Replay, current turn.Turn, k int) []string {
	var chat []string
	for _, t := range r.Turns() {
		if t.Speaker() == turn.SpeakerInstructor && t.Intent().IsChat() {
			chat = append(chat, t.Utterance())
		}
	}
	if current != nil && current.Speaker() == turn.SpeakerInstructor && current.Intent().IsChat() {
		chat = append(chat, current.Utterance())
	}
	if k <= 0 || len(chat) <= k {
		return chat
	}
	out := append([]string(nil), chat[:k-1]...)
	return append(out, chat[len(chat)-1])
}

// prevTurns formats the last NumPrevTurns turns. A line that alone exceeds
// the budget is shortened, then the oldest lines are dropped until the joined
// text fits or the attempts run out.
func (a *Assembler) prevTurns(r *replay.Replay, uidKey string) ([]string, bool) {
	turns := r.Turns()
	if n := a.opts.NumPrevTurns; n >= 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = action.FormatTurn(t, uidKey)
	}
	budget := a.opts.MaxPrevTurnsTokens
	if len(lines) == 0 || a.count(strings.Join(lines, " ")) <= budget {
		return lines, true
	}

	for i, line := range lines {
		if a.count(line) > budget {
			lines[i] = truncation.TruncateText(line, budget, a.count, a.reductionOptions(truncation.SideCenter, 0)).Text
		}
	}
	reduced := truncation.Reduce(lines, budget, func(head, tail []string) int {
		return a.count(strings.Join(head, " ") + joinSep(head, tail) + strings.Join(tail, " "))
	}, a.reductionOptions(truncation.SideLeft, a.opts.MaxAttempts))
	return reduced.Units(), reduced.WithinBudget
}

func joinSep(head, tail []string) string {
	if len(head) > 0 && len(tail) > 0 {
		return " "
	}
	return ""
}

func (a *Assembler) domTree(src, uidKey string, top []candidate.Record) (domtree.TruncateResult, error) {
	doc, err := domtree.Parse(src, uidKey)
	if err != nil {
		return domtree.TruncateResult{}, errors.Wrap(err, "parse page html")
	}
	tree := doc.Prune(candidate.UIDs(top))
	if e := a.logger.Trace(); e.Enabled() {
		e.Str("tree", tree.Pretty()).Msg("pruned page")
	}
	return tree.Truncate(a.opts.MaxHTMLTokens, a.count, a.reductionOptions(truncation.SideLeft, 0)), nil
}

// truncateCandidates drops the lowest ranked records until the formatted
// list fits.
func (a *Assembler) truncateCandidates(records []candidate.Record, budget int) ([]candidate.Record, bool) {
	if len(records) == 0 {
		return records, true
	}
	reduced := truncation.Reduce(records, budget, func(head, tail []candidate.Record) int {
		return a.count(candidate.FormatList(head) + candidate.FormatList(tail))
	}, a.reductionOptions(truncation.SideRight, len(records)+1))
	return reduced.Units(), reduced.WithinBudget
}

// MergePrevTurns turns formatted turn lines into chat messages. Consecutive
// lines from the same speaker share one message. final is appended to the
// last message when it is a user message, otherwise it becomes one.
func MergePrevTurns(lines []string, final string) []*llm.Message {
	var merged []*llm.Message
	for _, line := range lines {
		role := roleOf(line)
		if n := len(merged); n > 0 && merged[n-1].Role == role {
			merged[n-1].Content += " " + line
			continue
		}
		merged = append(merged, &llm.Message{Role: role, Content: line})
	}
	if n := len(merged); n > 0 && merged[n-1].Role == llm.MessageRoleUser {
		merged[n-1].Content += " " + final
	} else {
		merged = append(merged, &llm.Message{Role: llm.MessageRoleUser, Content: final})
	}
	return merged
}

// roleOf reads the speaker back from a formatted line: instructor lines are
// user messages, everything else the navigator did.
func roleOf(line string) llm.MessageRole {
	if strings.Contains(line, `speaker="instructor"`) {
		return llm.MessageRoleUser
	}
	return llm.MessageRoleAssistant
}

// InsertEmptyUserFirst makes sure a user message directly follows the system
// message, as the chat template requires.
func InsertEmptyUserFirst(messages []*llm.Message) []*llm.Message {
	if len(messages) == 0 || messages[0].Role != llm.MessageRoleSystem {
		return messages
	}
	if len(messages) > 1 && messages[1].Role == llm.MessageRoleUser {
		return messages
	}
	out := make([]*llm.Message, 0, len(messages)+1)
	out = append(out, messages[0], &llm.Message{Role: llm.MessageRoleUser, Content: ""})
	return append(out, messages[1:]...)
}

// Query builds the text candidates are ranked against.
func Query(r *replay.Replay, current turn.Turn, page *turn.Page, numUtterances, numPrevTurns int) string {
	utterances := strings.Join(Utterances(r, current, numUtterances), utteranceSeparator)
	turns := r.Turns()
	if numPrevTurns >= 0 && len(turns) > numPrevTurns {
		turns = turns[len(turns)-numPrevTurns:]
	}
	prev := make([]string, len(turns))
	for i, t := range turns {
		prev[i] = action.FormatTurnForQuery(t)
	}
	return candidate.Query(page.ViewportHeight(), page.ViewportWidth(), utterances, strings.Join(prev, utteranceSeparator))
}
