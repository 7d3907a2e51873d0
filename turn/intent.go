package turn

import "strings"

type Intent string

// Instructor intents. The browser extension sends "say" for a chat message,
// "chat" is accepted as an alias.
const (
	IntentChat     Intent = "chat"
	IntentContinue Intent = "continue"
)

// Navigator intents.
const (
	IntentChange    Intent = "change"
	IntentClick     Intent = "click"
	IntentLoad      Intent = "load"
	IntentSay       Intent = "say"
	IntentScroll    Intent = "scroll"
	IntentSubmit    Intent = "submit"
	IntentTextInput Intent = "textinput"

	IntentUnknown Intent = "unknown"
)

var navigatorIntents = []Intent{
	IntentChange,
	IntentClick,
	IntentLoad,
	IntentSay,
	IntentScroll,
	IntentSubmit,
	IntentTextInput,
}

var elementIntents = []Intent{
	IntentChange,
	IntentClick,
	IntentSubmit,
	IntentTextInput,
}

func (i Intent) IsNavigator() bool {
	for _, n := range navigatorIntents {
		if i == n {
			return true
		}
	}
	return false
}

func (i Intent) IsElementIntent() bool {
	for _, e := range elementIntents {
		if i == e {
			return true
		}
	}
	return false
}

// IsChat reports whether the intent produces a chat turn rather than a
// browser turn.
func (i Intent) IsChat() bool {
	return i == IntentSay || i == IntentChat
}

// ParseUserIntent normalizes the instructor intent spelling.
func ParseUserIntent(s string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentSay, IntentChat:
		return IntentChat, true
	case IntentContinue:
		return IntentContinue, true
	default:
		return Intent(s), false
	}
}

// ParseNavigatorIntent normalizes a navigator intent. The model grammar and
// some clients spell text input as "text_input" or "text-input".
func ParseNavigatorIntent(s string) (Intent, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	switch normalized {
	case "text_input", "text-input":
		return IntentTextInput, true
	}
	i := Intent(normalized)
	if i.IsNavigator() {
		return i, true
	}
	return IntentUnknown, false
}

// GrammarName is the function name used for the intent in the action grammar
// shown to the model.
func (i Intent) GrammarName() string {
	if i == IntentTextInput {
		return "text_input"
	}
	return string(i)
}
