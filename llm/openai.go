package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

const OpenAIAPIURL = "https://api.openai.com/v1"

// ClientOptions point the OpenAI client at any OpenAI compatible server, for
// example a text-generation-inference or vLLM deployment of the navigator.
type ClientOptions struct {
	APIKey  string
	BaseURL string
}

func newClient(options *ClientOptions) *openai.Client {
	cfg := openai.DefaultConfig("")
	if options != nil {
		cfg = openai.DefaultConfig(options.APIKey)
		if options.BaseURL != "" {
			cfg.BaseURL = options.BaseURL
		}
	}
	return openai.NewClientWithConfig(cfg)
}

type OpenAIChatModel struct {
	client  *openai.Client
	modelID ChatModelID
}

type OpenAICompletionModel struct {
	client  *openai.Client
	modelID CompletionModelID
}

type OpenAIEmbeddingModel struct {
	client  *openai.Client
	modelID EmbeddingModelID
}

func NewOpenAIChatModel(modelID ChatModelID, options *ClientOptions) *OpenAIChatModel {
	return &OpenAIChatModel{client: newClient(options), modelID: modelID}
}

func NewOpenAICompletionModel(modelID CompletionModelID, options *ClientOptions) *OpenAICompletionModel {
	return &OpenAICompletionModel{client: newClient(options), modelID: modelID}
}

func NewOpenAIEmbeddingModel(modelID EmbeddingModelID, options *ClientOptions) *OpenAIEmbeddingModel {
	return &OpenAIEmbeddingModel{client: newClient(options), modelID: modelID}
}

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (m *OpenAIChatModel) Message(ctx context.Context, messages []*Message, options *MessageOptions) (*Message, error) {
	req := openai.ChatCompletionRequest{
		Model:    string(m.modelID),
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, message := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(message.Role),
			Content: message.Content,
			Name:    message.Name,
		})
	}
	if options != nil {
		req.Temperature = options.Temperature
		req.MaxTokens = options.MaxTokens
		req.Stop = options.StopSequences
	}
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Message: "invalid response, no choices"}
	}
	choice := resp.Choices[0].Message
	return &Message{
		Role:    MessageRole(choice.Role),
		Content: choice.Content,
	}, nil
}

func (m *OpenAICompletionModel) Generate(ctx context.Context, prompt string, options *MessageOptions) (string, error) {
	req := openai.CompletionRequest{
		Model:  string(m.modelID),
		Prompt: prompt,
	}
	if options != nil {
		req.Temperature = options.Temperature
		req.MaxTokens = options.MaxTokens
		req.Stop = options.StopSequences
	}
	resp, err := m.client.CreateCompletion(ctx, req)
	if err != nil {
		return "", wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Message: "invalid response, no choices"}
	}
	return resp.Choices[0].Text, nil
}

func (m *OpenAIEmbeddingModel) Embedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := m.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(m.modelID),
	})
	if err != nil {
		return nil, wrapAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &Error{Message: "invalid response, embedding count does not match input"}
	}
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, &Error{Message: "invalid response, embedding index out of range"}
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func wrapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := &Error{Message: apiErr.Message}
		if code, ok := apiErr.Code.(string); ok {
			e.Code = code
		}
		return e
	}
	return err
}
