package application

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-maestro/internal/domain"
)

// PredicateSpec is the YAML form of an argument check. Exactly one
// operator must be set. Fold requests Unicode case folding for the string
// operators of this node and of every node below it.
//
//	query:
//	  all_of:
//	    - contains: 강남
//	    - contains_any: [술, 저녁]
type PredicateSpec struct {
	Contains    *string         `yaml:"contains,omitempty"`
	ContainsAll []string        `yaml:"contains_all,omitempty"`
	ContainsAny []string        `yaml:"contains_any,omitempty"`
	Equals      *string         `yaml:"equals,omitempty"`
	Matches     *string         `yaml:"matches,omitempty"`
	Fuzzy       *FuzzySpec      `yaml:"fuzzy,omitempty"`
	AllOf       []PredicateSpec `yaml:"all_of,omitempty"`
	AnyOf       []PredicateSpec `yaml:"any_of,omitempty"`
	Not         *PredicateSpec  `yaml:"not,omitempty"`
	Fold        bool            `yaml:"fold,omitempty"`
}

// FuzzySpec matches when the Levenshtein similarity between the actual
// value and Value reaches Threshold.
type FuzzySpec struct {
	Value     string  `yaml:"value"`
	Threshold float64 `yaml:"threshold"`
}

// CompilePredicate turns spec into a domain.Predicate.
func CompilePredicate(spec PredicateSpec) (domain.Predicate, error) {
	return compile(spec, false)
}

func compile(spec PredicateSpec, fold bool) (domain.Predicate, error) {
	fold = fold || spec.Fold

	var ops []string
	if spec.Contains != nil {
		ops = append(ops, "contains")
	}
	if spec.ContainsAll != nil {
		ops = append(ops, "contains_all")
	}
	if spec.ContainsAny != nil {
		ops = append(ops, "contains_any")
	}
	if spec.Equals != nil {
		ops = append(ops, "equals")
	}
	if spec.Matches != nil {
		ops = append(ops, "matches")
	}
	if spec.Fuzzy != nil {
		ops = append(ops, "fuzzy")
	}
	if spec.AllOf != nil {
		ops = append(ops, "all_of")
	}
	if spec.AnyOf != nil {
		ops = append(ops, "any_of")
	}
	if spec.Not != nil {
		ops = append(ops, "not")
	}

	switch len(ops) {
	case 0:
		return nil, fmt.Errorf("predicate: no operator set")
	case 1:
	default:
		return nil, fmt.Errorf("predicate: exactly one operator allowed, got %s", strings.Join(ops, ", "))
	}

	switch ops[0] {
	case "contains":
		return newText(opContainsAll, []string{*spec.Contains}, fold)
	case "contains_all":
		return newText(opContainsAll, spec.ContainsAll, fold)
	case "contains_any":
		return newText(opContainsAny, spec.ContainsAny, fold)
	case "equals":
		return newText(opEquals, []string{*spec.Equals}, fold)
	case "matches":
		pattern := *spec.Matches
		if fold {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("predicate matches: %w", err)
		}
		return matchesPredicate{re: re}, nil
	case "fuzzy":
		f := spec.Fuzzy
		if f.Value == "" {
			return nil, fmt.Errorf("predicate fuzzy: %w: value", domain.ErrEmptyValue)
		}
		if f.Threshold <= 0 || f.Threshold > 1 {
			return nil, fmt.Errorf("predicate fuzzy: threshold must be in (0, 1], got %v", f.Threshold)
		}
		return fuzzyPredicate{value: prepare(f.Value, fold), threshold: f.Threshold, fold: fold}, nil
	case "all_of", "any_of":
		children := spec.AllOf
		if ops[0] == "any_of" {
			children = spec.AnyOf
		}
		if len(children) == 0 {
			return nil, fmt.Errorf("predicate %s: needs at least one operand", ops[0])
		}
		preds := make([]domain.Predicate, len(children))
		for i, child := range children {
			p, err := compile(child, fold)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", ops[0], i, err)
			}
			preds[i] = p
		}
		return combinator{any: ops[0] == "any_of", preds: preds}, nil
	default: // not
		p, err := compile(*spec.Not, fold)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return notPredicate{p: p}, nil
	}
}

type textOp string

const (
	opContainsAll textOp = "contains_all"
	opContainsAny textOp = "contains_any"
	opEquals      textOp = "equals"
)

type textPredicate struct {
	op     textOp
	values []string
	fold   bool
}

func newText(op textOp, values []string, fold bool) (domain.Predicate, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("predicate %s: %w: values", op, domain.ErrEmptyValue)
	}
	prepared := make([]string, len(values))
	for i, v := range values {
		if v == "" && op != opEquals {
			return nil, fmt.Errorf("predicate %s: %w: operand %d", op, domain.ErrEmptyValue, i)
		}
		prepared[i] = prepare(v, fold)
	}
	return textPredicate{op: op, values: prepared, fold: fold}, nil
}

func (p textPredicate) Check(value any) bool {
	s := prepare(Stringify(value), p.fold)
	switch p.op {
	case opEquals:
		return s == p.values[0]
	case opContainsAny:
		for _, v := range p.values {
			if strings.Contains(s, v) {
				return true
			}
		}
		return false
	default:
		for _, v := range p.values {
			if !strings.Contains(s, v) {
				return false
			}
		}
		return true
	}
}

func (p textPredicate) String() string {
	var s string
	if p.op != opContainsAny && len(p.values) == 1 {
		name := "contains"
		if p.op == opEquals {
			name = "equals"
		}
		s = fmt.Sprintf("%s(%q)", name, p.values[0])
	} else {
		quoted := make([]string, len(p.values))
		for i, v := range p.values {
			quoted[i] = strconv.Quote(v)
		}
		s = fmt.Sprintf("%s(%s)", p.op, strings.Join(quoted, ", "))
	}
	if p.fold {
		s += "/fold"
	}
	return s
}

type matchesPredicate struct {
	re *regexp.Regexp
}

func (p matchesPredicate) Check(value any) bool { return p.re.MatchString(Stringify(value)) }

func (p matchesPredicate) String() string { return fmt.Sprintf("matches(%q)", p.re.String()) }

type fuzzyPredicate struct {
	value     string
	threshold float64
	fold      bool
}

func (p fuzzyPredicate) Check(value any) bool {
	return Similarity(prepare(Stringify(value), p.fold), p.value) >= p.threshold
}

func (p fuzzyPredicate) String() string {
	return fmt.Sprintf("fuzzy(%q, %.2f)", p.value, p.threshold)
}

type combinator struct {
	any   bool
	preds []domain.Predicate
}

func (c combinator) Check(value any) bool {
	for _, p := range c.preds {
		if p.Check(value) == c.any {
			return c.any
		}
	}
	return !c.any
}

func (c combinator) String() string {
	name := "all_of"
	if c.any {
		name = "any_of"
	}
	parts := make([]string, len(c.preds))
	for i, p := range c.preds {
		parts[i] = p.String()
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

type notPredicate struct {
	p domain.Predicate
}

func (n notPredicate) Check(value any) bool { return !n.p.Check(value) }

func (n notPredicate) String() string { return "not(" + n.p.String() + ")" }

// prepare applies Unicode case folding when fold is set. A Caser keeps
// state, so each call gets its own.
func prepare(s string, fold bool) string {
	if !fold {
		return s
	}
	return cases.Fold().String(s)
}

// Stringify renders a decoded JSON argument as text for the string
// predicates. Arrays are joined with spaces, whole numbers lose their
// fraction and objects are re-encoded as JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Stringify(e)
		}
		return strings.Join(parts, " ")
	case []string:
		return strings.Join(x, " ")
	case map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// Similarity returns 1 - distance/maxRunes for the Levenshtein distance
// between a and b. Two empty strings are identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(a, b)

	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}

	similarity := 1.0 - float64(distance)/float64(maxLen)
	if similarity < 0 {
		similarity = 0
	}
	return similarity
}
