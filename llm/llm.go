package llm

import (
	"context"
)

type ChatModelID string
type CompletionModelID string
type EmbeddingModelID string

const (
	ChatModelGPT4oMini   ChatModelID       = "gpt-4o-mini"
	CompletionModelLlama CompletionModelID = "McGill-NLP/Llama-2-13b-chat-weblinx"
	EmbeddingModelSmall  EmbeddingModelID  = "text-embedding-3-small"
)

type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
	Name    string      `json:"name,omitempty"`
}

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

type MessageOptions struct {
	Temperature   float32  `json:"temperature"`
	MaxTokens     int      `json:"max_tokens"`
	StopSequences []string `json:"stop_sequences"`
}

type ChatModel interface {
	Message(ctx context.Context, messages []*Message, options *MessageOptions) (*Message, error)
}

// Generator continues a raw prompt, the way a completion endpoint or a local
// text-generation server does.
type Generator interface {
	Generate(ctx context.Context, prompt string, options *MessageOptions) (string, error)
}

type EmbeddingModel interface {
	Embedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer produces the model reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []*Message, options *MessageOptions) (string, error)
}

// TemplateCompleter renders the conversation with a chat template and hands
// the text to a Generator.
type TemplateCompleter struct {
	Generator Generator
	Template  ChatTemplate
}

func (c *TemplateCompleter) Complete(ctx context.Context, messages []*Message, options *MessageOptions) (string, error) {
	tmpl := c.Template
	if tmpl == nil {
		tmpl = Llama2ChatTemplate
	}
	prompt, err := tmpl(messages)
	if err != nil {
		return "", err
	}
	return c.Generator.Generate(ctx, prompt, options)
}

// ChatCompleter sends the conversation to a chat model as is.
type ChatCompleter struct {
	Model ChatModel
}

func (c *ChatCompleter) Complete(ctx context.Context, messages []*Message, options *MessageOptions) (string, error) {
	reply, err := c.Model.Message(ctx, messages, options)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}
