package llm

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// WordBasedTokenEstimator multiplies the whitespace-separated word count.
type WordBasedTokenEstimator struct{ TokensPerWord float64 }

// NewWordBasedTokenEstimator defaults to 0.75 tokens per word.
func NewWordBasedTokenEstimator(tokensPerWord float64) *WordBasedTokenEstimator {
	if tokensPerWord <= 0 {
		tokensPerWord = 0.75
	}
	return &WordBasedTokenEstimator{TokensPerWord: tokensPerWord}
}

func (e *WordBasedTokenEstimator) EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * e.TokensPerWord)
}

// CharacterBasedTokenEstimator divides the rune count, so a Hangul
// syllable counts once rather than once per UTF-8 byte.
type CharacterBasedTokenEstimator struct{ charsPerToken float64 }

// NewCharacterBasedTokenEstimator defaults to 4 characters per token.
func NewCharacterBasedTokenEstimator(charsPerToken float64) *CharacterBasedTokenEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	return &CharacterBasedTokenEstimator{charsPerToken: charsPerToken}
}

func (e *CharacterBasedTokenEstimator) EstimateTokens(text string) int {
	return int(float64(utf8.RuneCountInString(text)) / e.charsPerToken)
}

// TiktokenEstimator counts BPE tokens exactly for OpenAI encodings and
// approximately for other providers.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads encoding, e.g. "cl100k_base" or "o200k_base".
// The BPE ranks are downloaded on first use unless TIKTOKEN_CACHE_DIR
// already holds them.
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenEstimator{enc: enc}, nil
}

func (e *TiktokenEstimator) EstimateTokens(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}

// CachingTokenEstimator memoizes another estimator. System prompts repeat
// on every round, so most lookups hit. It stops storing new entries once
// it holds maxSize.
type CachingTokenEstimator struct {
	underlying TokenEstimator
	maxSize    int

	mu      sync.RWMutex
	results map[string]int
}

func NewCachingTokenEstimator(underlying TokenEstimator, maxSize int) *CachingTokenEstimator {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &CachingTokenEstimator{underlying: underlying, maxSize: maxSize, results: make(map[string]int)}
}

func (e *CachingTokenEstimator) EstimateTokens(text string) int {
	e.mu.RLock()
	n, ok := e.results[text]
	e.mu.RUnlock()
	if ok {
		return n
	}

	n = e.underlying.EstimateTokens(text)
	e.mu.Lock()
	if len(e.results) < e.maxSize {
		e.results[text] = n
	}
	e.mu.Unlock()
	return n
}

func (e *CachingTokenEstimator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.results)
}

// NewTokenEstimator builds the estimator named in configuration: "simple"
// (the default), "word", "character" or "tiktoken".
func NewTokenEstimator(kind string) (TokenEstimator, error) {
	var base TokenEstimator
	switch kind {
	case "", "simple":
		return &SimpleTokenEstimator{}, nil
	case "word":
		base = NewWordBasedTokenEstimator(0)
	case "character":
		base = NewCharacterBasedTokenEstimator(0)
	case "tiktoken":
		enc, err := NewTiktokenEstimator("cl100k_base")
		if err != nil {
			return nil, err
		}
		base = enc
	default:
		return nil, fmt.Errorf("unknown token estimator %q", kind)
	}
	return NewCachingTokenEstimator(base, 0), nil
}
