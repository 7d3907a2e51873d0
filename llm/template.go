package llm

import (
	"strings"

	"github.com/pkg/errors"
)

// ChatTemplate renders a conversation into the single prompt string a
// completion model was trained on.
type ChatTemplate func(messages []*Message) (string, error)

const (
	llamaBOS = "<s>"
	llamaEOS = "</s>"
)

var ErrRolesMustAlternate = errors.New("conversation roles must alternate user/assistant/user/assistant/...")

// Llama2ChatTemplate renders the Llama-2 chat layout. An optional leading
// system message is folded into the first user message between <<SYS>> tags.
// After it, roles must alternate starting with user.
func Llama2ChatTemplate(messages []*Message) (string, error) {
	system := ""
	hasSystem := false
	if len(messages) > 0 && messages[0].Role == MessageRoleSystem {
		system, hasSystem = messages[0].Content, true
		messages = messages[1:]
	}
	var b strings.Builder
	for i, m := range messages {
		if (m.Role == MessageRoleUser) != (i%2 == 0) {
			return "", errors.Wrapf(ErrRolesMustAlternate, "message %d has role %s", i, m.Role)
		}
		content := m.Content
		if i == 0 && hasSystem {
			content = "<<SYS>>\n" + system + "\n<</SYS>>\n\n" + content
		}
		switch m.Role {
		case MessageRoleUser:
			b.WriteString(llamaBOS + "[INST] " + strings.TrimSpace(content) + " [/INST]")
		case MessageRoleAssistant:
			b.WriteString(" " + strings.TrimSpace(content) + " " + llamaEOS)
		}
	}
	return b.String(), nil
}
