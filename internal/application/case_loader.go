package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-maestro/internal/domain"
)

// CaseFile is the YAML document of an evaluation battery.
type CaseFile struct {
	Cases []CaseSpec `yaml:"cases" validate:"required,min=1,dive"`
}

// CaseSpec is one evaluation case before its checks are compiled.
type CaseSpec struct {
	Description string `yaml:"description" validate:"required"`
	Query       string `yaml:"query" validate:"required"`

	// ExpectedToolCalls is ordered. An empty list means the query must be
	// answered without any tool call.
	ExpectedToolCalls []ExpectedCallSpec `yaml:"expected_tool_calls" validate:"dive"`
}

// ExpectedCallSpec is one expected step with its argument checks.
type ExpectedCallSpec struct {
	AgentName      string                   `yaml:"agent_name" validate:"required,identifier"`
	FunctionName   string                   `yaml:"function_name" validate:"required,identifier"`
	ArgumentChecks map[string]PredicateSpec `yaml:"argument_checks,omitempty"`
}

// CaseLoader parses, validates and compiles evaluation batteries. Compiled
// batteries are cached by the SHA256 of their normalized YAML.
type CaseLoader struct {
	validator *validator.Validate

	// cache holds compiled cases keyed by content hash. Cached cases are
	// shared between callers and must not be mutated.
	cache   map[string][]domain.EvaluationCase
	cacheMu sync.RWMutex

	// sf collapses concurrent compilations of the same battery.
	sf singleflight.Group
}

// NewCaseLoader creates a loader with an empty cache.
func NewCaseLoader() (*CaseLoader, error) {
	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	return &CaseLoader{
		validator: v,
		cache:     make(map[string][]domain.EvaluationCase),
	}, nil
}

// LoadFromFile loads the battery at path.
func (l *CaseLoader) LoadFromFile(ctx context.Context, path string) ([]domain.EvaluationCase, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return l.load(ctx, data)
}

// LoadFromReader loads a battery from r.
func (l *CaseLoader) LoadFromReader(ctx context.Context, r io.Reader) ([]domain.EvaluationCase, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return l.load(ctx, data)
}

// ClearCache drops every compiled battery.
func (l *CaseLoader) ClearCache() {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	l.cache = make(map[string][]domain.EvaluationCase)
}

func (l *CaseLoader) load(ctx context.Context, data []byte) ([]domain.EvaluationCase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := parseCaseFile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Hash the normalized document so formatting changes reuse the cache.
	hash, err := hashCaseFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := l.sf.Do(hash, func() (any, error) {
		if cases, ok := l.cached(hash); ok {
			return cases, nil
		}

		if err := l.validator.Struct(file); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		cases, err := compileCases(file)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[hash] = cases
		l.cacheMu.Unlock()
		return cases, nil
	})
	if err != nil {
		return nil, err
	}

	return slices.Clone(v.([]domain.EvaluationCase)), nil
}

func (l *CaseLoader) cached(hash string) ([]domain.EvaluationCase, bool) {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()

	cases, ok := l.cache[hash]
	return cases, ok
}

func parseCaseFile(data []byte) (*CaseFile, error) {
	var file CaseFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &file, nil
}

func hashCaseFile(file *CaseFile) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(file); err != nil {
		return "", fmt.Errorf("failed to encode cases for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

func compileCases(file *CaseFile) ([]domain.EvaluationCase, error) {
	cases := make([]domain.EvaluationCase, 0, len(file.Cases))
	for i, spec := range file.Cases {
		c := domain.EvaluationCase{
			Description:       spec.Description,
			Query:             spec.Query,
			ExpectedToolCalls: make([]domain.ExpectedCall, 0, len(spec.ExpectedToolCalls)),
		}

		for j, call := range spec.ExpectedToolCalls {
			expected := domain.ExpectedCall{
				AgentName:    call.AgentName,
				FunctionName: call.FunctionName,
			}

			if len(call.ArgumentChecks) > 0 {
				expected.ArgumentChecks = make(map[string]domain.Predicate, len(call.ArgumentChecks))
				params := make([]string, 0, len(call.ArgumentChecks))
				for p := range call.ArgumentChecks {
					params = append(params, p)
				}
				sort.Strings(params)

				for _, param := range params {
					pred, err := CompilePredicate(call.ArgumentChecks[param])
					if err != nil {
						return nil, fmt.Errorf("case %d (%s) step %d argument %s: %w",
							i, spec.Description, j, param, err)
					}
					expected.ArgumentChecks[param] = pred
				}
			}
			c.ExpectedToolCalls = append(c.ExpectedToolCalls, expected)
		}
		cases = append(cases, c)
	}
	return cases, nil
}
