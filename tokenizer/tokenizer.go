// Package tokenizer provides the token counting oracle used to measure prompt
// segments against their budgets.
package tokenizer

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	pkoukk "github.com/pkoukk/tiktoken-go"
	"github.com/tiktoken-go/tokenizer"
)

type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a plain function to Counter.
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int {
	return f(text)
}

type Backend string

const (
	BackendCodec     Backend = "codec"
	BackendTiktoken  Backend = "tiktoken"
	BackendHeuristic Backend = "heuristic"
)

const DefaultEncoding = "cl100k_base"

type Options struct {
	Backend  Backend
	Encoding string
	// CacheSize enables an LRU cache of counts when positive.
	CacheSize int
}

func New(options *Options) (Counter, error) {
	opts := Options{Backend: BackendCodec, Encoding: DefaultEncoding}
	if options != nil {
		if options.Backend != "" {
			opts.Backend = options.Backend
		}
		if options.Encoding != "" {
			opts.Encoding = options.Encoding
		}
		opts.CacheSize = options.CacheSize
	}
	var counter Counter
	var err error
	switch opts.Backend {
	case BackendCodec:
		counter, err = NewCodecCounter(opts.Encoding)
	case BackendTiktoken:
		counter, err = NewTiktokenCounter(opts.Encoding)
	case BackendHeuristic:
		counter = HeuristicCounter{}
	default:
		return nil, errors.Errorf("unknown tokenizer backend: %s", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	if opts.CacheSize > 0 {
		return NewCached(counter, opts.CacheSize)
	}
	return counter, nil
}

type CodecCounter struct {
	codec tokenizer.Codec
}

func NewCodecCounter(encoding string) (*CodecCounter, error) {
	codec, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, errors.Wrapf(err, "load %s codec", encoding)
	}
	return &CodecCounter{codec: codec}, nil
}

func (c *CodecCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return HeuristicCounter{}.Count(text)
	}
	return len(ids)
}

type TiktokenCounter struct {
	encoding *pkoukk.Tiktoken
}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := pkoukk.GetEncoding(encoding)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s encoding", encoding)
	}
	return &TiktokenCounter{encoding: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// HeuristicCounter estimates max(runes/4, words). It needs no encoding files.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	return estimate
}

// Cached memoizes counts of a wrapped counter. Prompt assembly measures the
// same strings many times over a reduction.
type Cached struct {
	inner Counter
	cache *lru.Cache[string, int]
}

func NewCached(inner Counter, size int) (*Cached, error) {
	cache, err := lru.New[string, int](size)
	if err != nil {
		return nil, errors.Wrap(err, "create token count cache")
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Count(text string) int {
	if n, ok := c.cache.Get(text); ok {
		return n
	}
	n := c.inner.Count(text)
	c.cache.Add(text, n)
	return n
}
