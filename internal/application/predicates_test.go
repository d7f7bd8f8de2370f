package application

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-maestro/internal/domain"
)

func ptr(s string) *string { return &s }

// parsePredicate compiles a predicate from its YAML form.
func parsePredicate(t *testing.T, src string) domain.Predicate {
	t.Helper()
	var spec PredicateSpec
	require.NoError(t, yaml.Unmarshal([]byte(src), &spec))
	p, err := CompilePredicate(spec)
	require.NoError(t, err)
	return p
}

func TestCompilePredicate_Check(t *testing.T) {
	tests := []struct {
		name  string
		spec  string
		value any
		want  bool
	}{
		{"contains hit", `contains: 강남`, "강남역 술집", true},
		{"contains miss", `contains: 홍대`, "강남역 술집", false},
		{"contains is case sensitive", `contains: TechCrunch`, "techcrunch ai", false},
		{"contains fold", "contains: TechCrunch\nfold: true", "techcrunch ai", true},
		{"contains_all hit", `contains_all: [프로젝트, 진행]`, "프로젝트 진행 상황", true},
		{"contains_all partial", `contains_all: [프로젝트, 예산]`, "프로젝트 진행 상황", false},
		{"contains_any hit", `contains_any: [술, 저녁]`, "강남 저녁 맛집", true},
		{"contains_any miss", `contains_any: [술, 저녁]`, "강남 카페", false},
		{"equals", `equals: dev_team@mycompany.com`, "dev_team@mycompany.com", true},
		{"equals rejects superstring", `equals: 김철수`, "김철수 팀장", false},
		{"equals fold", "equals: AAPL\nfold: true", "aapl", true},
		{"matches", `matches: '^\d{4}-\d{2}-\d{2}$'`, "2025-08-15", true},
		{"matches miss", `matches: '^\d{4}-\d{2}-\d{2}$'`, "내일", false},
		{"matches fold", "matches: '^meeting'\nfold: true", "Meeting notes", true},
		{"fuzzy close", "fuzzy: {value: 프로젝트 진행 상황, threshold: 0.8}", "프로젝트 진행상황", true},
		{"fuzzy far", "fuzzy: {value: 프로젝트 진행 상황, threshold: 0.8}", "주간 회의", false},
		{"missing argument", `contains: 강남`, nil, false},
		{"number argument", `equals: "3"`, float64(3), true},
		{"array argument", `contains_all: [a@x.com, b@x.com]`, []any{"a@x.com", "b@x.com"}, true},
		{
			name:  "all_of",
			spec:  "all_of:\n  - contains: 강남\n  - contains_any: [술, 저녁]",
			value: "강남 술집 추천",
			want:  true,
		},
		{
			name:  "all_of one fails",
			spec:  "all_of:\n  - contains: 강남\n  - contains_any: [술, 저녁]",
			value: "강남 카페",
			want:  false,
		},
		{
			name:  "any_of",
			spec:  "any_of:\n  - equals: 김철수\n  - contains: kim@",
			value: "kim@mycompany.com",
			want:  true,
		},
		{"not", "not:\n  contains: 취소", "회의 일정", true},
		{"not negates", "not:\n  contains: 취소", "회의 취소", false},
		{
			name:  "fold propagates to children",
			spec:  "fold: true\nany_of:\n  - equals: NVDA\n  - equals: TSLA",
			value: "nvda",
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := parsePredicate(t, tt.spec)
			assert.Equal(t, tt.want, p.Check(tt.value))
		})
	}
}

func TestCompilePredicate_String(t *testing.T) {
	tests := []struct {
		spec string
		want string
	}{
		{`contains: 강남`, `contains("강남")`},
		{`contains_all: [a, b]`, `contains_all("a", "b")`},
		{`contains_any: [a, b]`, `contains_any("a", "b")`},
		{`equals: x`, `equals("x")`},
		{"equals: AAPL\nfold: true", `equals("aapl")/fold`},
		{`matches: '^a'`, `matches("^a")`},
		{"fuzzy: {value: abc, threshold: 0.75}", `fuzzy("abc", 0.75)`},
		{"any_of:\n  - contains: a\n  - not:\n      contains: b", `any_of(contains("a"), not(contains("b")))`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, parsePredicate(t, tt.spec).String())
		})
	}
}

func TestCompilePredicate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		spec    PredicateSpec
		wantErr string
	}{
		{"no operator", PredicateSpec{Fold: true}, "no operator set"},
		{"two operators", PredicateSpec{Contains: ptr("a"), Equals: ptr("a")}, "exactly one operator allowed, got contains, equals"},
		{"empty contains", PredicateSpec{Contains: ptr("")}, "empty value"},
		{"empty contains_any", PredicateSpec{ContainsAny: []string{}}, "empty value"},
		{"bad regexp", PredicateSpec{Matches: ptr("([")}, "predicate matches"},
		{"fuzzy without value", PredicateSpec{Fuzzy: &FuzzySpec{Threshold: 0.5}}, "empty value"},
		{"fuzzy threshold zero", PredicateSpec{Fuzzy: &FuzzySpec{Value: "a"}}, "threshold must be in (0, 1]"},
		{"fuzzy threshold above one", PredicateSpec{Fuzzy: &FuzzySpec{Value: "a", Threshold: 1.5}}, "threshold must be in (0, 1]"},
		{"empty all_of", PredicateSpec{AllOf: []PredicateSpec{}}, "needs at least one operand"},
		{
			"bad child",
			PredicateSpec{AnyOf: []PredicateSpec{{Contains: ptr("a")}, {}}},
			"any_of[1]: predicate: no operator set",
		},
		{"bad negated", PredicateSpec{Not: &PredicateSpec{}}, "not: predicate: no operator set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompilePredicate(tt.spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompilePredicate_EqualsAllowsEmpty(t *testing.T) {
	p, err := CompilePredicate(PredicateSpec{Equals: ptr("")})
	require.NoError(t, err)
	assert.True(t, p.Check(nil), "a missing argument stringifies to empty")
	assert.False(t, p.Check("x"))
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "강남", "강남"},
		{"whole number", float64(10), "10"},
		{"fraction", 2.5, "2.5"},
		{"bool", true, "true"},
		{"array", []any{"a", float64(1), false}, "a 1 false"},
		{"string slice", []string{"a", "b"}, "a b"},
		{"object", map[string]any{"b": float64(1), "a": "x"}, `{"a":"x","b":1}`},
		{"other", 7, "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stringify(tt.value))
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"abc", "abc", 1.0},
		{"abc", "", 0.0},
		{"kitten", "sitting", 1 - 3.0/7},
		{"프로젝트", "프로젝트s", 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestPrepare_ConcurrentFold(t *testing.T) {
	done := make(chan string)
	for i := 0; i < 8; i++ {
		go func() { done <- prepare(strings.Repeat("ÄbC", 50), true) }()
	}
	want := strings.Repeat("äbc", 50)
	for i := 0; i < 8; i++ {
		assert.Equal(t, want, <-done)
	}
}
