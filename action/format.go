package action

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"webnavigator/candidate"
	"webnavigator/turn"
)

// MaxArgLength caps free text arguments when turns are shown to the model.
const MaxArgLength = 200

// Quote renders s as a double quoted string argument.
func Quote(s string) string {
	return strconv.Quote(s)
}

// Call renders name(k1=v1, k2=v2) keeping the given key order.
func Call(name string, keys []string, args map[string]any) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := args[k]
		if !ok {
			continue
		}
		parts = append(parts, k+"="+formatValue(v))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return Quote(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return Quote(fmt.Sprint(x))
	}
}

// Format renders a prediction back into the grammar. Unknown intents render
// as the raw text.
func (p Prediction) Format() string {
	if p.Intent == turn.IntentUnknown {
		return p.Raw
	}
	keys := make([]string, 0, len(p.Args))
	for k := range p.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Call(p.Intent.GrammarName(), keys, p.Args)
}

// FormatTurn renders a past turn the way the model writes actions, with
// elements referenced by uid.
func FormatTurn(t turn.Turn, uidKey string) string {
	switch v := t.(type) {
	case *turn.InstructorTurn:
		return formatSay(turn.SpeakerInstructor, v.Utterance())
	case *turn.ActionTurn:
		return formatAction(v, uidKey)
	default:
		return ""
	}
}

func formatSay(speaker turn.Speaker, utterance string) string {
	return Call("say", []string{"speaker", "utterance"}, map[string]any{
		"speaker":   string(speaker),
		"utterance": utterance,
	})
}

func formatAction(t *turn.ActionTurn, uidKey string) string {
	args := map[string]any{}
	uid := ElementUID(t.Element(), uidKey)
	if uid != "" {
		args["uid"] = uid
	}
	name := t.Intent().GrammarName()
	switch t.Intent() {
	case turn.IntentSay:
		return formatSay(turn.SpeakerNavigator, t.Utterance())
	case turn.IntentClick, turn.IntentSubmit:
		return Call(name, []string{"uid"}, args)
	case turn.IntentTextInput:
		args["text"] = candidate.Shorten(typedValue(t.Text(), t.Element()), MaxArgLength)
		return Call(name, []string{"text", "uid"}, args)
	case turn.IntentChange:
		args["value"] = candidate.Shorten(typedValue(t.Value(), t.Element()), MaxArgLength)
		return Call(name, []string{"value", "uid"}, args)
	case turn.IntentLoad:
		args["url"] = candidate.Shorten(loadURL(t), MaxArgLength)
		return Call(name, []string{"url"}, args)
	case turn.IntentScroll:
		if x := t.ScrollX(); x != nil {
			args["x"] = *x
		}
		if y := t.ScrollY(); y != nil {
			args["y"] = *y
		}
		return Call(name, []string{"x", "y"}, args)
	default:
		return Call(name, nil, nil)
	}
}

// FormatTurnForQuery renders a past turn for the ranking query. Elements are
// described by tag and a few attributes since uids mean nothing to the ranker.
func FormatTurnForQuery(t turn.Turn) string {
	at, ok := t.(*turn.ActionTurn)
	if !ok {
		return FormatTurn(t, "")
	}
	if !at.Intent().IsElementIntent() {
		return formatAction(at, "")
	}
	args := map[string]any{}
	keys := []string{}
	if at.Intent() == turn.IntentClick {
		if md := at.Metadata(); md != nil {
			args["x"], args["y"] = md.MouseX, md.MouseY
			keys = append(keys, "x", "y")
		}
	}
	switch at.Intent() {
	case turn.IntentTextInput:
		args["text"] = typedValue(at.Text(), at.Element())
		keys = append(keys, "text")
	case turn.IntentChange:
		args["value"] = typedValue(at.Value(), at.Element())
		keys = append(keys, "value")
	}
	if el := at.Element(); el != nil {
		args["tag"] = strings.ToLower(el.TagName)
		keys = append(keys, "tag")
		for _, k := range queryAttributes {
			if v, ok := el.Attributes[k]; ok && v != nil {
				args[k] = fmt.Sprint(v)
				keys = append(keys, k)
			}
		}
	}
	return Call(at.Intent().GrammarName(), keys, args)
}

var queryAttributes = []string{"class", "title", "href", "aria-label", "d", "src"}

// ElementUID returns the uid stored under uidKey in the element attributes.
func ElementUID(el *turn.Element, uidKey string) string {
	if el == nil || uidKey == "" {
		return ""
	}
	v, ok := el.Attributes[uidKey]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func typedValue(explicit *string, el *turn.Element) string {
	if explicit != nil {
		return *explicit
	}
	if el != nil {
		if v, ok := el.Attributes["value"]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

func loadURL(t *turn.ActionTurn) string {
	if p := t.Properties(); p != nil && p.URL != "" {
		return p.URL
	}
	if md := t.Metadata(); md != nil {
		return md.URL
	}
	return ""
}
