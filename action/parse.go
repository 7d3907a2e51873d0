// Package action reads and writes the function-call grammar the model uses for
// actions, for example click(uid="a1") or scroll(x=0, y=250).
package action

import (
	"strconv"
	"strings"
	"unicode"

	"webnavigator/turn"
)

// Prediction is a parsed model output. Unparseable output yields
// turn.IntentUnknown with empty args.
type Prediction struct {
	Intent turn.Intent
	Args   map[string]any
	Raw    string
}

// Parse reads the first call in text. Leading and trailing prose is ignored.
func Parse(text string) Prediction {
	p := Prediction{Intent: turn.IntentUnknown, Args: map[string]any{}, Raw: text}
	name, body, ok := findCall(text)
	if !ok {
		return p
	}
	intent, known := turn.ParseNavigatorIntent(name)
	if !known {
		return p
	}
	p.Intent = intent
	p.Args = SanitizeArgs(parseArgs(body))
	return p
}

// findCall locates name(...) where name is a known navigator intent spelling,
// or the first identifier followed by "(" if none is known. The body stops at
// the matching parenthesis outside quotes, or at the end of text.
func findCall(text string) (string, string, bool) {
	first := -1
	var firstName string
	for i := 0; i < len(text); i++ {
		if text[i] != '(' {
			continue
		}
		j := i
		for j > 0 && isIdentByte(text[j-1]) {
			j--
		}
		if j == i {
			continue
		}
		name := text[j:i]
		if _, ok := turn.ParseNavigatorIntent(name); ok {
			return name, callBody(text[i+1:]), true
		}
		if first < 0 {
			first, firstName = i, name
		}
	}
	if first < 0 {
		return "", "", false
	}
	return firstName, callBody(text[first+1:]), true
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '-' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func callBody(rest string) string {
	var quote rune
	escaped := false
	depth := 0
	for i, r := range rest {
		switch {
		case escaped:
			escaped = false
		case quote != 0 && r == '\\':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(' || r == '[' || r == '{':
			depth++
		case r == ')' && depth == 0:
			return rest[:i]
		case r == ')' || r == ']' || r == '}':
			depth--
		}
	}
	return rest
}

// parseArgs splits key=value pairs on commas outside quotes.
func parseArgs(body string) map[string]any {
	args := map[string]any{}
	s := &scanner{src: []rune(body)}
	for {
		s.skipSpaceAndCommas()
		if s.done() {
			return args
		}
		key := s.ident()
		s.skipSpace()
		if key == "" || !s.accept('=') {
			// positional or malformed; skip to next comma
			s.skipValue()
			continue
		}
		s.skipSpace()
		args[key] = s.value()
	}
}

type scanner struct {
	src []rune
	pos int
}

func (s *scanner) done() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() rune {
	if s.done() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) accept(r rune) bool {
	if s.peek() == r && !s.done() {
		s.pos++
		return true
	}
	return false
}

func (s *scanner) skipSpace() {
	for !s.done() && unicode.IsSpace(s.peek()) {
		s.pos++
	}
}

func (s *scanner) skipSpaceAndCommas() {
	for !s.done() && (unicode.IsSpace(s.peek()) || s.peek() == ',') {
		s.pos++
	}
}

func (s *scanner) ident() string {
	start := s.pos
	for !s.done() {
		r := s.peek()
		if r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			s.pos++
			continue
		}
		break
	}
	return string(s.src[start:s.pos])
}

func (s *scanner) skipValue() {
	if q := s.peek(); q == '"' || q == '\'' {
		s.quoted()
	}
	for !s.done() && s.peek() != ',' {
		s.pos++
	}
}

func (s *scanner) value() any {
	if q := s.peek(); q == '"' || q == '\'' {
		return s.quoted()
	}
	start := s.pos
	for !s.done() && s.peek() != ',' {
		s.pos++
	}
	return bareValue(strings.TrimSpace(string(s.src[start:s.pos])))
}

// quoted reads a quoted string. An unterminated string runs to the end.
func (s *scanner) quoted() string {
	quote := s.src[s.pos]
	s.pos++
	var b strings.Builder
	for !s.done() {
		r := s.src[s.pos]
		s.pos++
		if r == quote {
			return b.String()
		}
		if r != '\\' || s.done() {
			b.WriteRune(r)
			continue
		}
		next := s.src[s.pos]
		s.pos++
		switch next {
		case 'n':
			b.WriteRune('\n')
		case 't':
			b.WriteRune('\t')
		case 'r':
			b.WriteRune('\r')
		default:
			b.WriteRune(next)
		}
	}
	return b.String()
}

func bareValue(v string) any {
	switch v {
	case "None", "null", "none", "":
		return nil
	case "True", "true":
		return true
	case "False", "false":
		return false
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

var numericArgs = map[string]bool{
	"x": true, "y": true,
	"top": true, "left": true, "right": true, "bottom": true,
}

// SanitizeArgs trims string values and turns quoted coordinates into numbers.
func SanitizeArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if numericArgs[k] {
				if n, isNum := bareValue(s).(int); isNum {
					out[k] = n
					continue
				} else if f, isNum := bareValue(s).(float64); isNum {
					out[k] = f
					continue
				}
			}
			out[k] = s
			continue
		}
		out[k] = v
	}
	return out
}
