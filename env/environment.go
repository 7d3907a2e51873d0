// Package env assembles the navigator and its collaborators from the loaded
// configuration.
package env

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"webnavigator/agent"
	"webnavigator/config"
	"webnavigator/llm"
	"webnavigator/metrics"
	"webnavigator/navigator"
	"webnavigator/prompt"
	"webnavigator/ranker"
	"webnavigator/session"
	"webnavigator/tokenizer"
)

const (
	GeneratorCompletion = "completion"
	GeneratorChat       = "chat"
)

type Environment struct {
	Config    *config.Config
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Store     *session.Store
	Navigator *navigator.Navigator
	Counter   tokenizer.Counter
}

type Options struct {
	// Completer replaces the configured generator, mostly for tests.
	Completer llm.Completer
	// Scorer replaces the configured ranker backend.
	Scorer ranker.Scorer
	Logger *zerolog.Logger
}

func NewEnvironment(cfg *config.Config, options *Options) (*Environment, error) {
	if options == nil {
		options = &Options{}
	}
	logger := zerolog.Nop()
	if options.Logger != nil {
		logger = *options.Logger
	}
	component := func(name string) *zerolog.Logger {
		l := logger.With().Str("component", name).Logger()
		return &l
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	counter, err := tokenizer.New(&tokenizer.Options{
		Backend:   tokenizer.Backend(cfg.Tokenizer.Backend),
		Encoding:  cfg.Tokenizer.Encoding,
		CacheSize: cfg.Tokenizer.CacheSize,
	})
	if err != nil {
		return nil, errors.Wrap(err, "tokenizer")
	}

	assembler := prompt.NewAssembler(counter, &prompt.Options{
		MaxHTMLTokens:           cfg.Prompt.MaxHTMLTokens,
		MaxUtteranceTokens:      cfg.Prompt.MaxUtteranceTokens,
		MaxPrevTurnsTokens:      cfg.Prompt.MaxPrevTurnsTokens,
		MaxCandidatesTokens:     cfg.Prompt.MaxCandidatesTokens,
		NumUtterances:           cfg.Prompt.NumUtterances,
		NumPrevTurns:            cfg.Prompt.NumPrevTurns,
		MaxCandidates:           cfg.Prompt.MaxCandidates,
		MaxAttempts:             cfg.Prompt.MaxAttempts,
		AddUnusedLenToCands:     cfg.Prompt.AddUnusedLenToCands,
		AllowIterativeReduction: cfg.Prompt.AllowIterativeReduction,
		IncludeHTML:             cfg.Prompt.IncludeHTML,
		Logger:                  component("prompt"),
	})

	completer := options.Completer
	if completer == nil {
		if completer, err = newCompleter(cfg.Generator); err != nil {
			return nil, err
		}
	}
	strategy, err := agent.ParseStrategy(cfg.Agent.Strategy)
	if err != nil {
		return nil, err
	}
	a, err := agent.New(assembler, completer, &agent.Options{
		Strategy:    strategy,
		MaxAttempts: cfg.Agent.MaxAttempts,
		MessageOptions: &llm.MessageOptions{
			Temperature: cfg.Generator.Temperature,
			MaxTokens:   cfg.Generator.MaxOutLen,
		},
		Logger: component("agent"),
	})
	if err != nil {
		return nil, err
	}

	scorer := options.Scorer
	if scorer == nil {
		if scorer, err = newScorer(cfg.Ranker); err != nil {
			return nil, err
		}
	}
	rk := ranker.New(scorer, &ranker.Options{Fallbacks: m.RankerFallbacks, Logger: component("ranker")})

	store := session.NewStore(&session.Options{Sessions: m.Sessions, Logger: component("session")})
	nav := navigator.New(store, a, &navigator.Options{
		Ranker:        rk,
		NumUtterances: cfg.Prompt.NumUtterances,
		NumPrevTurns:  cfg.Prompt.NumPrevTurns,
		Metrics:       m,
		Logger:        component("navigator"),
	})
	return &Environment{
		Config:    cfg,
		Registry:  reg,
		Metrics:   m,
		Store:     store,
		Navigator: nav,
		Counter:   counter,
	}, nil
}

func newCompleter(cfg config.GeneratorConfig) (llm.Completer, error) {
	client := &llm.ClientOptions{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}
	switch cfg.Backend {
	case GeneratorCompletion, "":
		return &llm.TemplateCompleter{
			Generator: llm.NewOpenAICompletionModel(llm.CompletionModelID(cfg.Model), client),
			Template:  llm.Llama2ChatTemplate,
		}, nil
	case GeneratorChat:
		return &llm.ChatCompleter{Model: llm.NewOpenAIChatModel(llm.ChatModelID(cfg.Model), client)}, nil
	default:
		return nil, errors.Errorf("unknown generator backend: %s", cfg.Backend)
	}
}

func newScorer(cfg config.RankerConfig) (ranker.Scorer, error) {
	switch ranker.Backend(cfg.Backend) {
	case ranker.BackendOrder, "":
		return ranker.OrderScorer{}, nil
	case ranker.BackendEmbedding:
		similarity, err := ranker.ParseSimilarity(cfg.Similarity)
		if err != nil {
			return nil, err
		}
		model := llm.NewOpenAIEmbeddingModel(llm.EmbeddingModelID(cfg.Model), &llm.ClientOptions{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.APIURL,
		})
		return ranker.NewEmbeddingScorer(model, &ranker.EmbeddingOptions{
			Similarity: similarity,
			BatchSize:  cfg.BatchSize,
			CacheSize:  cfg.CacheSize,
		})
	case ranker.BackendInference:
		if cfg.APIURL == "" {
			return nil, errors.New("ranker.api_url is required for the inference ranker")
		}
		return ranker.NewInferenceScorer(cfg.APIURL, &ranker.InferenceOptions{AuthToken: cfg.AuthToken}), nil
	default:
		return nil, errors.Errorf("unknown ranker backend: %s", cfg.Backend)
	}
}
