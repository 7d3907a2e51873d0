package turn

import "fmt"

// FieldError reports a field that is required for the given intent.
type FieldError struct {
	Field  string
	Param  string
	Intent string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("Field `%s` should be in %s if intent is %s.", e.Field, e.Param, e.Intent)
}

// UnknownIntentError reports an intent value outside the allowed set.
type UnknownIntentError struct {
	Param  string
	Intent string
}

func (e *UnknownIntentError) Error() string {
	return fmt.Sprintf("Unknown intent %q in %s.", e.Intent, e.Param)
}

func ValidateUserIntent(u UserIntent) error {
	intent, ok := ParseUserIntent(u.Intent)
	if !ok {
		return &UnknownIntentError{Param: "user_intent", Intent: u.Intent}
	}
	if intent == IntentChat && (u.Utterance == nil || *u.Utterance == "") {
		return &FieldError{Field: "utterance", Param: "user_intent", Intent: u.Intent}
	}
	return nil
}

// ValidatePrevTurn checks the fields each navigator intent must carry.
// A nil prev turn is valid.
func ValidatePrevTurn(p *PrevTurn) error {
	if p == nil {
		return nil
	}
	intent, ok := ParseNavigatorIntent(p.Intent)
	if !ok {
		return &UnknownIntentError{Param: "prev_turn", Intent: p.Intent}
	}
	missing := func(field string) error {
		return &FieldError{Field: field, Param: "prev_turn", Intent: string(intent)}
	}
	if intent == IntentSay {
		if p.Utterance == nil || *p.Utterance == "" {
			return missing("utterance")
		}
		return nil
	}
	if p.HTML == "" {
		return missing("html")
	} else if len(p.BBoxes) == 0 {
		return missing("bboxes")
	} else if p.Metadata == nil {
		return missing("metadata")
	}
	if intent.IsElementIntent() && p.Element == nil {
		return missing("element")
	}
	if intent == IntentScroll {
		if p.ScrollX == nil {
			return missing("scrollX")
		} else if p.ScrollY == nil {
			return missing("scrollY")
		}
	}
	return nil
}
