package action

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"webnavigator/turn"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		intent turn.Intent
		args   map[string]any
	}{
		{"click by uid", `click(uid="x1")`, turn.IntentClick, map[string]any{"uid": "x1"}},
		{"surrounding prose", "Sure. click(uid=\"x1\")\nDone", turn.IntentClick, map[string]any{"uid": "x1"}},
		{"text input spelling", `text_input(text="blue shoes, size 9", uid="s2")`, turn.IntentTextInput,
			map[string]any{"text": "blue shoes, size 9", "uid": "s2"}},
		{"say with escapes", `say(speaker="navigator", utterance="It\'s \"done\"")`, turn.IntentSay,
			map[string]any{"speaker": "navigator", "utterance": `It's "done"`}},
		{"numbers", `scroll(x=0, y=-250)`, turn.IntentScroll, map[string]any{"x": 0, "y": -250}},
		{"quoted coordinates", `click(x="5.5", y='7')`, turn.IntentClick, map[string]any{"x": 5.5, "y": 7}},
		{"none value", `click(x=None, y=3)`, turn.IntentClick, map[string]any{"x": nil, "y": 3}},
		{"single quotes", `load(url='https://example.com/a?b=(1)')`, turn.IntentLoad,
			map[string]any{"url": "https://example.com/a?b=(1)"}},
		{"unterminated", `change(value="red, uid="c1"`, turn.IntentChange, map[string]any{"value": "red, uid="}},
		{"unknown function", `hover(uid="a")`, turn.IntentUnknown, map[string]any{}},
		{"no call", "I cannot help with that", turn.IntentUnknown, map[string]any{}},
		{"empty", "", turn.IntentUnknown, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(tt.text)
			assert.Equal(t, tt.intent, p.Intent)
			assert.Equal(t, tt.args, p.Args)
			assert.Equal(t, tt.text, p.Raw)
		})
	}
}

func TestPredictionFormatRoundTrips(t *testing.T) {
	p := Parse(`text_input(uid="s2", text="hello")`)
	assert.Equal(t, `text_input(text="hello", uid="s2")`, p.Format())
	again := Parse(p.Format())
	assert.Equal(t, p.Args, again.Args)

	unknown := Parse("nonsense")
	assert.Equal(t, "nonsense", unknown.Format())
}

func element(uid string) *turn.Element {
	return &turn.Element{
		Attributes: map[string]any{"data-uid": uid, "class": "btn", "value": "prefilled"},
		TagName:    "BUTTON",
	}
}

func TestFormatTurn(t *testing.T) {
	ts := time.Time{}
	page := turn.PrevTurn{
		HTML:     "<html></html>",
		BBoxes:   map[string]turn.BoundingBox{"a": {}},
		Metadata: &turn.Metadata{URL: "https://shop.example", MouseX: 3, MouseY: 4},
	}
	with := func(intent string, mod func(p *turn.PrevTurn)) turn.Turn {
		p := page
		p.Intent = intent
		if mod != nil {
			mod(&p)
		}
		return turn.NewActionTurn(p, 0, ts)
	}

	tests := []struct {
		name string
		turn turn.Turn
		want string
	}{
		{"instructor", turn.NewInstructorTurn(turn.UserIntent{Intent: "say", Utterance: strPtr("find shoes")}, 0, ts),
			`say(speaker="instructor", utterance="find shoes")`},
		{"navigator say", turn.NewActionTurn(turn.PrevTurn{Intent: "say", Utterance: strPtr("ok")}, 0, ts),
			`say(speaker="navigator", utterance="ok")`},
		{"click", with("click", func(p *turn.PrevTurn) { p.Element = element("b1") }), `click(uid="b1")`},
		{"submit", with("submit", func(p *turn.PrevTurn) { p.Element = element("f1") }), `submit(uid="f1")`},
		{"text input", with("textinput", func(p *turn.PrevTurn) {
			p.Element = element("i1")
			p.Text = strPtr("size 9")
		}), `text_input(text="size 9", uid="i1")`},
		{"change falls back to value attribute", with("change", func(p *turn.PrevTurn) { p.Element = element("s1") }),
			`change(value="prefilled", uid="s1")`},
		{"load", with("load", nil), `load(url="https://shop.example")`},
		{"load prefers properties", with("load", func(p *turn.PrevTurn) {
			p.Properties = &turn.TransitionProperties{URL: "https://other.example"}
		}), `load(url="https://other.example")`},
		{"scroll", with("scroll", func(p *turn.PrevTurn) {
			p.ScrollX = intPtr(0)
			p.ScrollY = intPtr(300)
		}), `scroll(x=0, y=300)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTurn(tt.turn, "data-uid"))
		})
	}
}

func TestFormatTurnForQueryDescribesElement(t *testing.T) {
	p := turn.PrevTurn{
		Intent:   "click",
		HTML:     "<html></html>",
		BBoxes:   map[string]turn.BoundingBox{"a": {}},
		Metadata: &turn.Metadata{MouseX: 3, MouseY: 4},
		Element:  element("b1"),
	}
	got := FormatTurnForQuery(turn.NewActionTurn(p, 0, time.Time{}))
	assert.Equal(t, `click(x=3, y=4, tag="button", class="btn")`, got)
}

func TestElementUID(t *testing.T) {
	assert.Equal(t, "b1", ElementUID(element("b1"), "data-uid"))
	assert.Equal(t, "", ElementUID(element("b1"), "data-other"))
	assert.Equal(t, "", ElementUID(nil, "data-uid"))
}
