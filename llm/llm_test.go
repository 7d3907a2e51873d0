package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLlama2ChatTemplate(t *testing.T) {
	text, err := Llama2ChatTemplate([]*Message{
		{Role: MessageRoleSystem, Content: "sys"},
		{Role: MessageRoleUser, Content: " hi "},
		{Role: MessageRoleAssistant, Content: "click(uid=\"a\")"},
		{Role: MessageRoleUser, Content: "next"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"<s>[INST] <<SYS>>\nsys\n<</SYS>>\n\nhi [/INST] click(uid=\"a\") </s><s>[INST] next [/INST]",
		text)
}

func TestLlama2ChatTemplateWithoutSystem(t *testing.T) {
	text, err := Llama2ChatTemplate([]*Message{{Role: MessageRoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "<s>[INST] hi [/INST]", text)
}

func TestLlama2ChatTemplateRejectsBadOrder(t *testing.T) {
	_, err := Llama2ChatTemplate([]*Message{
		{Role: MessageRoleSystem, Content: "sys"},
		{Role: MessageRoleAssistant, Content: "a"},
	})
	assert.True(t, errors.Is(err, ErrRolesMustAlternate))
}

type fakeGenerator struct {
	prompt string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ *MessageOptions) (string, error) {
	f.prompt = prompt
	return "say(speaker=\"navigator\", utterance=\"ok\")", nil
}

func TestTemplateCompleter(t *testing.T) {
	gen := &fakeGenerator{}
	c := &TemplateCompleter{Generator: gen}
	out, err := c.Complete(context.Background(), []*Message{{Role: MessageRoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "say(speaker=\"navigator\", utterance=\"ok\")", out)
	assert.Equal(t, "<s>[INST] hi [/INST]", gen.prompt)
}

func newOpenAIServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "<s>[INST] hi [/INST]", req["prompt"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"text": " click(uid=\"a\")", "index": 0}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"index":   0,
				"message": map[string]any{"role": "assistant", "content": "load(url=\"https://a.b\")"},
			}},
		})
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
		})
	})
	mux.HandleFunc("/v1/broken/completions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "bad prompt", "code": "invalid_prompt", "type": "invalid_request_error"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAICompletionModel(t *testing.T) {
	srv := newOpenAIServer(t)
	m := NewOpenAICompletionModel(CompletionModelLlama, &ClientOptions{APIKey: "key", BaseURL: srv.URL + "/v1"})
	out, err := m.Generate(context.Background(), "<s>[INST] hi [/INST]", &MessageOptions{MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, " click(uid=\"a\")", out)
}

func TestOpenAICompletionModelError(t *testing.T) {
	srv := newOpenAIServer(t)
	m := NewOpenAICompletionModel(CompletionModelLlama, &ClientOptions{APIKey: "key", BaseURL: srv.URL + "/v1/broken"})
	_, err := m.Generate(context.Background(), "x", nil)
	require.Error(t, err)
	var llmErr *Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, "invalid_prompt", llmErr.Code)
	assert.Equal(t, "bad prompt", llmErr.Message)
}

func TestOpenAIChatModel(t *testing.T) {
	srv := newOpenAIServer(t)
	c := &ChatCompleter{Model: NewOpenAIChatModel(ChatModelGPT4oMini, &ClientOptions{BaseURL: srv.URL + "/v1"})}
	out, err := c.Complete(context.Background(), []*Message{{Role: MessageRoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "load(url=\"https://a.b\")", out)
}

func TestOpenAIEmbeddingModelOrdersByIndex(t *testing.T) {
	srv := newOpenAIServer(t)
	m := NewOpenAIEmbeddingModel(EmbeddingModelSmall, &ClientOptions{BaseURL: srv.URL + "/v1"})
	vectors, err := m.Embedding(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)

	empty, err := m.Embedding(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
