package ranker

import (
	"context"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"webnavigator/llm"
)

type Similarity string

const (
	SimilarityCosine     Similarity = "cos_sim"
	SimilarityDotProduct Similarity = "dot_product"
)

func ParseSimilarity(s string) (Similarity, error) {
	switch Similarity(s) {
	case SimilarityCosine, "":
		return SimilarityCosine, nil
	case SimilarityDotProduct:
		return SimilarityDotProduct, nil
	default:
		return "", errors.Errorf("unknown similarity: %s", s)
	}
}

const (
	DefaultBatchSize = 64
	DefaultCacheSize = 10000
	defaultWorkers   = 4
)

type EmbeddingOptions struct {
	Similarity Similarity
	BatchSize  int
	CacheSize  int
}

// EmbeddingScorer embeds the query and the documents and scores documents by
// their similarity to the query. Embeddings are cached by text.
type EmbeddingScorer struct {
	model      llm.EmbeddingModel
	similarity Similarity
	batchSize  int
	cache      *lru.Cache[string, []float32]
}

func NewEmbeddingScorer(model llm.EmbeddingModel, options *EmbeddingOptions) (*EmbeddingScorer, error) {
	opts := EmbeddingOptions{Similarity: SimilarityCosine, BatchSize: DefaultBatchSize, CacheSize: DefaultCacheSize}
	if options != nil {
		if options.Similarity != "" {
			opts.Similarity = options.Similarity
		}
		if options.BatchSize > 0 {
			opts.BatchSize = options.BatchSize
		}
		if options.CacheSize > 0 {
			opts.CacheSize = options.CacheSize
		}
	}
	cache, err := lru.New[string, []float32](opts.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create embedding cache")
	}
	return &EmbeddingScorer{
		model:      model,
		similarity: opts.Similarity,
		batchSize:  opts.BatchSize,
		cache:      cache,
	}, nil
}

func (s *EmbeddingScorer) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	vectors, err := s.embed(ctx, append([]string{query}, docs...))
	if err != nil {
		return nil, err
	}
	q := vectors[0]
	scores := make([]float64, len(docs))
	for i, v := range vectors[1:] {
		if len(v) != len(q) {
			return nil, errors.Errorf("embedding size mismatch: query %d, document %d", len(q), len(v))
		}
		switch s.similarity {
		case SimilarityDotProduct:
			scores[i] = dot(q, v)
		default:
			scores[i] = cosine(q, v)
		}
	}
	return scores, nil
}

// embed returns one vector per text, calling the model only for texts that
// are not cached. Uncached texts are sent in concurrent batches.
func (s *EmbeddingScorer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	missingIdx := map[string][]int{}
	for i, t := range texts {
		if v, ok := s.cache.Get(t); ok {
			out[i] = v
			continue
		}
		if _, seen := missingIdx[t]; !seen {
			missing = append(missing, t)
		}
		missingIdx[t] = append(missingIdx[t], i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultWorkers)
	for start := 0; start < len(missing); start += s.batchSize {
		batch := missing[start:min(start+s.batchSize, len(missing))]
		g.Go(func() error {
			vectors, err := s.model.Embedding(ctx, batch)
			if err != nil {
				return errors.Wrap(err, "embed batch")
			}
			if len(vectors) != len(batch) {
				return errors.Errorf("got %d embeddings for %d texts", len(vectors), len(batch))
			}
			mu.Lock()
			defer mu.Unlock()
			for i, t := range batch {
				s.cache.Add(t, vectors[i])
				for _, idx := range missingIdx[t] {
					out[idx] = vectors[i]
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosine(a, b []float32) float64 {
	na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}
