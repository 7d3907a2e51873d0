// Package ranker scores candidate records against a query and turns the
// scores into ranks.
package ranker

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"webnavigator/candidate"
)

// Scorer returns one score per document, aligned with docs. Higher is more
// relevant.
type Scorer interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

type Backend string

const (
	BackendEmbedding Backend = "embedding"
	BackendInference Backend = "inference"
	BackendOrder     Backend = "order"
)

type Options struct {
	// Fallbacks counts rankings that fell back to input order.
	Fallbacks prometheus.Counter
	Logger    *zerolog.Logger
}

// Ranker ranks records in place. Scoring failures never fail the request:
// records are ranked in input order with candidate.FallbackScore instead.
type Ranker struct {
	scorer    Scorer
	fallbacks prometheus.Counter
	logger    zerolog.Logger
}

func New(scorer Scorer, options *Options) *Ranker {
	r := &Ranker{scorer: scorer, logger: zerolog.Nop()}
	if options != nil {
		r.fallbacks = options.Fallbacks
		if options.Logger != nil {
			r.logger = *options.Logger
		}
	}
	return r
}

// Rank scores records against query and assigns their ranks. It reports
// whether the input order fallback was used.
func (r *Ranker) Rank(ctx context.Context, query string, records []candidate.Record) bool {
	if len(records) == 0 {
		return false
	}
	if err := r.rank(ctx, query, records); err != nil {
		r.logger.Error().Err(err).Int("records", len(records)).Msg("ranking failed, using input order")
		if r.fallbacks != nil {
			r.fallbacks.Inc()
		}
		candidate.AssignFallbackRanks(records)
		return true
	}
	return false
}

func (r *Ranker) rank(ctx context.Context, query string, records []candidate.Record) error {
	if r.scorer == nil {
		return errors.New("no scorer configured")
	}
	docs := make([]string, len(records))
	for i, rec := range records {
		docs[i] = rec.Doc
	}
	scores, err := r.scorer.Score(ctx, query, docs)
	if err != nil {
		return errors.Wrap(err, "score records")
	}
	return candidate.AssignRanks(records, scores)
}

// OrderScorer keeps the input order. It is used when no model is available.
type OrderScorer struct{}

func (OrderScorer) Score(_ context.Context, _ string, docs []string) ([]float64, error) {
	scores := make([]float64, len(docs))
	for i := range docs {
		scores[i] = float64(len(docs) - i)
	}
	return scores, nil
}
