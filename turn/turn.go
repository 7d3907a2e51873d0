package turn

import "time"

type Speaker string

const (
	SpeakerInstructor Speaker = "instructor"
	SpeakerNavigator  Speaker = "navigator"
)

type Type string

const (
	TypeChat    Type = "chat"
	TypeBrowser Type = "browser"
)

// UserIntent is what the instructor sent with a request.
type UserIntent struct {
	Intent    string  `json:"intent"`
	Utterance *string `json:"utterance,omitempty"`
}

// PrevTurn is the navigator action the browser executed since the last
// request, together with the page it left behind.
type PrevTurn struct {
	Intent     string                 `json:"intent"`
	HTML       string                 `json:"html,omitempty"`
	BBoxes     map[string]BoundingBox `json:"bboxes,omitempty"`
	Metadata   *Metadata              `json:"metadata,omitempty"`
	Element    *Element               `json:"element,omitempty"`
	Properties *TransitionProperties  `json:"properties,omitempty"`
	ScrollX    *int                   `json:"scrollX,omitempty"`
	ScrollY    *int                   `json:"scrollY,omitempty"`
	Utterance  *string                `json:"utterance,omitempty"`
	// Text and Value carry what was typed or selected by textinput and change.
	Text  *string `json:"text,omitempty"`
	Value *string `json:"value,omitempty"`
}

// Turn is one step of a session. The two implementations are
// *InstructorTurn and *ActionTurn.
type Turn interface {
	Index() int
	// SetIndex is reserved for the replay that owns the turn.
	SetIndex(i int)
	Intent() Intent
	Speaker() Speaker
	Type() Type
	Args() map[string]any
	Utterance() string
	// Page is nil when the turn was not recorded against a page.
	Page() *Page
	Timestamp() time.Time

	isTurn()
}

type InstructorTurn struct {
	index     int
	intent    Intent
	utterance string
	timestamp time.Time
}

// NewInstructorTurn builds a turn from an already validated user intent.
func NewInstructorTurn(u UserIntent, index int, timestamp time.Time) *InstructorTurn {
	intent, _ := ParseUserIntent(u.Intent)
	t := &InstructorTurn{
		index:     index,
		intent:    intent,
		timestamp: timestamp,
	}
	if u.Utterance != nil {
		t.utterance = *u.Utterance
	}
	return t
}

func (t *InstructorTurn) isTurn() {}

func (t *InstructorTurn) Index() int           { return t.index }
func (t *InstructorTurn) SetIndex(i int)       { t.index = i }
func (t *InstructorTurn) Intent() Intent       { return t.intent }
func (t *InstructorTurn) Speaker() Speaker     { return SpeakerInstructor }
func (t *InstructorTurn) Utterance() string    { return t.utterance }
func (t *InstructorTurn) Page() *Page          { return nil }
func (t *InstructorTurn) Timestamp() time.Time { return t.timestamp }

func (t *InstructorTurn) Type() Type {
	if t.intent == IntentChat {
		return TypeChat
	}
	return TypeBrowser
}

func (t *InstructorTurn) Args() map[string]any {
	args := map[string]any{}
	if t.utterance != "" {
		args["utterance"] = t.utterance
	}
	return args
}

type ActionTurn struct {
	index     int
	intent    Intent
	prev      PrevTurn
	timestamp time.Time
}

// NewActionTurn builds a turn from an already validated navigator action.
func NewActionTurn(p PrevTurn, index int, timestamp time.Time) *ActionTurn {
	intent, _ := ParseNavigatorIntent(p.Intent)
	return &ActionTurn{
		index:     index,
		intent:    intent,
		prev:      p,
		timestamp: timestamp,
	}
}

func (t *ActionTurn) isTurn() {}

func (t *ActionTurn) Index() int           { return t.index }
func (t *ActionTurn) SetIndex(i int)       { t.index = i }
func (t *ActionTurn) Intent() Intent       { return t.intent }
func (t *ActionTurn) Speaker() Speaker     { return SpeakerNavigator }
func (t *ActionTurn) Timestamp() time.Time { return t.timestamp }

func (t *ActionTurn) Type() Type {
	if t.intent == IntentSay {
		return TypeChat
	}
	return TypeBrowser
}

func (t *ActionTurn) Utterance() string {
	if t.prev.Utterance == nil {
		return ""
	}
	return *t.prev.Utterance
}

func (t *ActionTurn) Element() *Element                 { return t.prev.Element }
func (t *ActionTurn) Metadata() *Metadata               { return t.prev.Metadata }
func (t *ActionTurn) Properties() *TransitionProperties { return t.prev.Properties }
func (t *ActionTurn) ScrollX() *int                     { return t.prev.ScrollX }
func (t *ActionTurn) ScrollY() *int                     { return t.prev.ScrollY }
func (t *ActionTurn) Text() *string                     { return t.prev.Text }
func (t *ActionTurn) Value() *string                    { return t.prev.Value }

// Record returns a copy of the wire form of the turn.
func (t *ActionTurn) Record() PrevTurn {
	return t.prev
}

func (t *ActionTurn) Page() *Page {
	if t.prev.HTML == "" && len(t.prev.BBoxes) == 0 && t.prev.Metadata == nil {
		return nil
	}
	return &Page{
		HTML:     t.prev.HTML,
		BBoxes:   t.prev.BBoxes,
		Metadata: t.prev.Metadata,
	}
}

func (t *ActionTurn) Args() map[string]any {
	args := map[string]any{}
	if t.intent == IntentSay {
		if u := t.Utterance(); u != "" {
			args["utterance"] = u
		}
		return args
	}
	if t.prev.Metadata != nil {
		args["metadata"] = t.prev.Metadata
	}
	if t.prev.Properties != nil {
		args["properties"] = t.prev.Properties
	}
	if t.prev.Element != nil {
		args["element"] = t.prev.Element
	}
	if t.prev.ScrollX != nil {
		args["scrollX"] = *t.prev.ScrollX
	}
	if t.prev.ScrollY != nil {
		args["scrollY"] = *t.prev.ScrollY
	}
	if t.prev.Text != nil {
		args["text"] = *t.prev.Text
	}
	if t.prev.Value != nil {
		args["value"] = *t.prev.Value
	}
	return args
}
