package ranker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

type InferenceOptions struct {
	// AuthToken is sent verbatim in the Authorization header.
	AuthToken  string
	HTTPClient *http.Client
}

// InferenceScorer calls a hosted sentence-similarity endpoint that takes
// {"inputs": {"source_sentence": q, "sentences": docs}} and answers with one
// score per sentence.
type InferenceScorer struct {
	url        string
	authToken  string
	httpClient *http.Client
}

func NewInferenceScorer(url string, options *InferenceOptions) *InferenceScorer {
	s := &InferenceScorer{
		url:        url,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	if options != nil {
		s.authToken = options.AuthToken
		if options.HTTPClient != nil {
			s.httpClient = options.HTTPClient
		}
	}
	return s
}

type inferenceRequest struct {
	Inputs inferenceInputs `json:"inputs"`
}

type inferenceInputs struct {
	SourceSentence string   `json:"source_sentence"`
	Sentences      []string `json:"sentences"`
}

func (s *InferenceScorer) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	body, err := json.Marshal(inferenceRequest{Inputs: inferenceInputs{SourceSentence: query, Sentences: docs}})
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", s.authToken)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("inference API error (status %d): %s", resp.StatusCode, raw)
	}
	scores, err := decodeScores(raw)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(docs) {
		return nil, errors.Errorf("got %d scores for %d documents", len(scores), len(docs))
	}
	return scores, nil
}

// decodeScores accepts a list of numbers or, for a single sentence, a bare
// number.
func decodeScores(raw []byte) ([]float64, error) {
	var scores []float64
	if err := json.Unmarshal(raw, &scores); err == nil {
		return scores, nil
	}
	var single float64
	if err := json.Unmarshal(raw, &single); err == nil {
		return []float64{single}, nil
	}
	return nil, errors.Errorf("unexpected inference response: %s", raw)
}
