package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webnavigator/candidate"
	"webnavigator/llm"
	"webnavigator/replay"
	"webnavigator/tokenizer"
	"webnavigator/turn"
)

const uidKey = "data-uid"

var words = tokenizer.CounterFunc(func(s string) int { return len(strings.Fields(s)) })

func strPtr(s string) *string { return &s }

func say(r *replay.Replay, utterance string) {
	r.BuildAndAppendInstructor(turn.UserIntent{Intent: "say", Utterance: strPtr(utterance)})
}

const shopPage = `<html><body><div data-uid="c1">Price 10</div><button data-uid="c2">Buy</button><a data-uid="c3">Help</a></body></html>`

func shopTurn(intent, uid string) turn.PrevTurn {
	return turn.PrevTurn{
		Intent:   intent,
		HTML:     shopPage,
		BBoxes:   map[string]turn.BoundingBox{"c1": {}, "c2": {}, "c3": {}},
		Metadata: &turn.Metadata{ViewportHeight: 600, ViewportWidth: 800, URL: "https://shop.example"},
		Element:  &turn.Element{Attributes: map[string]any{uidKey: uid}, TagName: "BUTTON"},
	}
}

func shopRecords() []candidate.Record {
	return []candidate.Record{
		{UID: "c1", Doc: "div price", Rank: 2},
		{UID: "c2", Doc: "button buy", Rank: 1},
		{UID: "c3", Doc: "a help", Rank: 3},
	}
}

func roles(msgs []*llm.Message) []llm.MessageRole {
	out := make([]llm.MessageRole, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestBuildChatTurn(t *testing.T) {
	r := replay.New("s1", nil)
	say(r, "find the price")
	r.BuildAndAppendAction(shopTurn("click", "c2"))
	current := r.BuildInstructor(turn.UserIntent{Intent: "say", Utterance: strPtr("now buy it")})

	res, err := NewAssembler(words, nil).Build(Input{
		Replay:     r,
		Current:    current,
		Page:       r.LastPage(),
		Candidates: shopRecords(),
		UIDKey:     uidKey,
	})
	require.NoError(t, err)

	require.Equal(t, []llm.MessageRole{
		llm.MessageRoleSystem, llm.MessageRoleUser, llm.MessageRoleAssistant, llm.MessageRoleUser,
	}, roles(res.Messages))

	system := res.Messages[0].Content
	assert.True(t, strings.HasPrefix(system, "(html (body"), system)
	assert.Contains(t, system, "The user's first and last 4 utterances are: find the price ; now buy it ;")
	assert.Contains(t, system, "Viewport size: 600h x 800w ;")
	assert.Contains(t, system, "Only the last 5 turns are provided.")
	assert.True(t, strings.HasSuffix(system,
		"\nHere are the top candidates for this turn: (uid = c2) button buy\n(uid = c1) div price\n(uid = c3) a help\n\n"), system)

	assert.Equal(t, `say(speaker="instructor", utterance="find the price")`, res.Messages[1].Content)
	assert.Equal(t, `click(uid="c2")`, res.Messages[2].Content)
	assert.Equal(t, "now buy it", res.Messages[3].Content)

	assert.Equal(t, []string{"c2", "c1", "c3"}, candidate.UIDs(res.Candidates))
	for _, seg := range Segments() {
		assert.True(t, res.WithinBudget[seg], seg)
	}
}

func TestBuildContinueTurnInsertsEmptyUser(t *testing.T) {
	r := replay.New("s1", nil)
	current := r.BuildAction(shopTurn("click", "c1"))

	res, err := NewAssembler(words, nil).Build(Input{Replay: r, Current: current, Page: current.Page(), UIDKey: uidKey})
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, llm.MessageRoleUser, res.Messages[1].Role)
	assert.Equal(t, FinalUserMessage, res.Messages[1].Content)
	assert.NotContains(t, res.Messages[0].Content, "(html", "no tree without candidates")
	assert.NotContains(t, res.Messages[0].Content, candidatePromptPrefix)
	assert.Equal(t, 0, res.CandidatesBudget)
}

func TestBuildReallocatesUnusedBudget(t *testing.T) {
	r := replay.New("s1", nil)
	say(r, "find the price")
	current := r.BuildAction(shopTurn("click", "c1"))
	in := Input{Replay: r, Current: current, Page: current.Page(), Candidates: shopRecords(), UIDKey: uidKey}

	res, err := NewAssembler(words, nil).Build(in)
	require.NoError(t, err)
	used := res.Tokens[SegmentHTML] + res.Tokens[SegmentUtterances] + res.Tokens[SegmentPrevTurns]
	assert.Equal(t, 650+(700+200+250-used), res.CandidatesBudget)

	opts := DefaultOptions()
	opts.AddUnusedLenToCands = false
	res, err = NewAssembler(words, &opts).Build(in)
	require.NoError(t, err)
	assert.Equal(t, 650, res.CandidatesBudget)
}

func TestBuildDropsWorstCandidates(t *testing.T) {
	r := replay.New("s1", nil)
	current := r.BuildAction(shopTurn("click", "c1"))
	records := []candidate.Record{
		{UID: "c1", Doc: "one two", Rank: 1},
		{UID: "c2", Doc: "one two", Rank: 2},
		{UID: "c3", Doc: "one two", Rank: 3},
		{UID: "c4", Doc: "one two", Rank: 4},
	}
	opts := DefaultOptions()
	opts.AddUnusedLenToCands = false
	opts.IncludeHTML = false
	opts.MaxCandidatesTokens = 10

	res, err := NewAssembler(words, &opts).Build(Input{Replay: r, Current: current, Page: current.Page(), Candidates: records, UIDKey: uidKey})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, candidate.UIDs(res.Candidates))
	assert.Equal(t, 10, res.Tokens[SegmentCandidates])
	assert.True(t, res.WithinBudget[SegmentCandidates])
}

func TestBuildKeepsOnlyTopCandidates(t *testing.T) {
	r := replay.New("s1", nil)
	current := r.BuildAction(shopTurn("click", "c1"))
	opts := DefaultOptions()
	opts.MaxCandidates = 1
	res, err := NewAssembler(words, &opts).Build(Input{Replay: r, Current: current, Page: current.Page(), Candidates: shopRecords(), UIDKey: uidKey})
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, candidate.UIDs(res.Candidates))
	assert.NotContains(t, res.Messages[0].Content, `data-uid="c3"`)
}

func TestBuildTruncatesUtterances(t *testing.T) {
	r := replay.New("s1", nil)
	say(r, strings.Repeat("word ", 50))
	current := r.BuildInstructor(turn.UserIntent{Intent: "say", Utterance: strPtr("short")})
	opts := DefaultOptions()
	opts.MaxUtteranceTokens = 10

	res, err := NewAssembler(words, &opts).Build(Input{Replay: r, Current: current, UIDKey: uidKey})
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Tokens[SegmentUtterances], 10)
	assert.True(t, res.WithinBudget[SegmentUtterances])
	assert.Contains(t, res.Messages[0].Content, "... ")
}

func TestBuildDropsOldestPrevTurns(t *testing.T) {
	r := replay.New("s1", nil)
	for _, u := range []string{"one", "two", "three", "four"} {
		say(r, u)
	}
	current := r.BuildAction(shopTurn("click", "c1"))
	opts := DefaultOptions()
	// each formatted turn is two words
	opts.MaxPrevTurnsTokens = 4

	res, err := NewAssembler(words, &opts).Build(Input{Replay: r, Current: current, UIDKey: uidKey})
	require.NoError(t, err)
	assert.True(t, res.WithinBudget[SegmentPrevTurns])
	assert.Equal(t, 4, res.Tokens[SegmentPrevTurns])
	assert.Equal(t,
		`say(speaker="instructor", utterance="three") say(speaker="instructor", utterance="four") `+FinalUserMessage,
		res.Messages[1].Content)
}

func TestBuildRequiresReplayAndTurn(t *testing.T) {
	_, err := NewAssembler(words, nil).Build(Input{})
	assert.Error(t, err)
}

func TestUtterancesFirstAndLast(t *testing.T) {
	r := replay.New("s1", nil)
	for _, u := range []string{"u1", "u2", "u3", "u4", "u5"} {
		say(r, u)
	}
	r.BuildAndAppendAction(turn.PrevTurn{Intent: "say", Utterance: strPtr("navigator says")})
	current := r.BuildInstructor(turn.UserIntent{Intent: "chat", Utterance: strPtr("u6")})

	assert.Equal(t, []string{"u1", "u2", "u6"}, Utterances(r, current, 3))
	assert.Equal(t, []string{"u1", "u2", "u3", "u4", "u5", "u6"}, Utterances(r, current, 10))
	assert.Equal(t, []string{"u1", "u2", "u3", "u4", "u5"}, Utterances(r, nil, 5))
}

func TestMergePrevTurns(t *testing.T) {
	instr := `say(speaker="instructor", utterance="hi")`
	merged := MergePrevTurns([]string{instr, `click(uid="a")`, `scroll(x=0, y=1)`}, "go")
	require.Len(t, merged, 3)
	assert.Equal(t, llm.MessageRoleUser, merged[0].Role)
	assert.Equal(t, llm.MessageRoleAssistant, merged[1].Role)
	assert.Equal(t, `click(uid="a") scroll(x=0, y=1)`, merged[1].Content)
	assert.Equal(t, &llm.Message{Role: llm.MessageRoleUser, Content: "go"}, merged[2])

	merged = MergePrevTurns([]string{`click(uid="a")`, instr}, "go")
	require.Len(t, merged, 2)
	assert.Equal(t, instr+" go", merged[1].Content)

	merged = MergePrevTurns(nil, "go")
	assert.Equal(t, []*llm.Message{{Role: llm.MessageRoleUser, Content: "go"}}, merged)
}

func TestInsertEmptyUserFirst(t *testing.T) {
	sys := &llm.Message{Role: llm.MessageRoleSystem, Content: "s"}
	asst := &llm.Message{Role: llm.MessageRoleAssistant, Content: "a"}
	user := &llm.Message{Role: llm.MessageRoleUser, Content: "u"}

	got := InsertEmptyUserFirst([]*llm.Message{sys, asst, user})
	assert.Equal(t, []llm.MessageRole{llm.MessageRoleSystem, llm.MessageRoleUser, llm.MessageRoleAssistant, llm.MessageRoleUser}, roles(got))
	assert.Equal(t, "", got[1].Content)

	got = InsertEmptyUserFirst([]*llm.Message{sys, user})
	assert.Len(t, got, 2)
}

func TestQuery(t *testing.T) {
	r := replay.New("s1", nil)
	say(r, "find shoes")
	r.BuildAndAppendAction(shopTurn("load", ""))
	current := r.BuildInstructor(turn.UserIntent{Intent: "say", Utterance: strPtr("size 9")})

	q := Query(r, current, r.LastPage(), 5, 5)
	assert.Equal(t,
		`Viewport(height=600, width=800) ---- Instructor Utterances: find shoes ; size 9 ---- Previous Turns:`+
			`say(speaker="instructor", utterance="find shoes") ; load(url="https://shop.example")`,
		q)
}
