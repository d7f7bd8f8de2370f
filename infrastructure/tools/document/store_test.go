package document

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-maestro/infrastructure/store"
	"github.com/ahrav/go-maestro/internal/ports"
)

const meetingsCSV = "\ufeff제목,날짜,참석자,내용\n" +
	"팀 KPI 회의록,2025-08-14,박기훈;김민수,\"3분기 KPI 달성률 92%, 신규 가입 목표 상향\"\n" +
	"주간 회의록,2025-08-11,김민수,배포 일정 논의\n" +
	"워크샵 안내,2025-08-20,,\"장소: 강원도, KPI 리뷰 포함\"\n" +
	",,,\n"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	s, err := NewStore(db)
	require.NoError(t, err)
	return s
}

func importMeetings(t *testing.T, s *Store) {
	t.Helper()
	n, err := s.ImportCSV(context.Background(), strings.NewReader(meetingsCSV), "meetings.csv")
	require.NoError(t, err)
	require.Equal(t, 3, n, "blank rows are skipped")
}

func TestImportCSV(t *testing.T) {
	s := newTestStore(t)

	importMeetings(t, s)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	matches, err := s.Search(context.Background(), "워크샵", 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "워크샵 안내", matches[0].Title)
	assert.Equal(t, map[string]string{"제목": "워크샵 안내", "날짜": "2025-08-20", "내용": "장소: 강원도, KPI 리뷰 포함"},
		matches[0].Fields, "empty cells are dropped and the BOM is stripped from the header")
	assert.Equal(t, "meetings.csv", matches[0].SourceFile)
}

func TestImportCSV_Errors(t *testing.T) {
	s := newTestStore(t)

	n, err := s.ImportCSV(context.Background(), strings.NewReader(""), "empty.csv")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.ImportCSV(context.Background(), strings.NewReader("a,b\n\"unterminated,1\n"), "bad.csv")
	assert.ErrorContains(t, err, "read csv line")
}

func TestSearch_Ranking(t *testing.T) {
	s := newTestStore(t)
	importMeetings(t, s)

	matches, err := s.Search(context.Background(), "KPI 회의록", 3)

	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "팀 KPI 회의록", matches[0].Title)
	assert.Equal(t, 4, matches[0].Score, "both terms in the title")
	assert.Equal(t, "주간 회의록", matches[1].Title)
	assert.Equal(t, "워크샵 안내", matches[2].Title)
}

func TestSearch_LikeWildcardsAreLiteral(t *testing.T) {
	s := newTestStore(t)
	importMeetings(t, s)

	matches, err := s.Search(context.Background(), "%", 3)

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "팀 KPI 회의록", matches[0].Title)
}

func TestTool(t *testing.T) {
	s := newTestStore(t)
	importMeetings(t, s)
	tool := Tool(s)

	t.Run("found", func(t *testing.T) {
		got, err := tool.Invoke(context.Background(), ports.ToolInvocation{Arguments: json.RawMessage(`{"query":"팀 KPI 회의록"}`)})

		require.NoError(t, err)
		matches := got.([]Match)
		assert.Equal(t, "팀 KPI 회의록", matches[0].Title)
		assert.False(t, tool.Mutating())
	})

	t.Run("nothing found", func(t *testing.T) {
		got, err := tool.Invoke(context.Background(), ports.ToolInvocation{Arguments: json.RawMessage(`{"query":"예산안"}`)})

		require.NoError(t, err)
		assert.Equal(t, "관련 문서를 찾을 수 없습니다.", got)
	})

	t.Run("blank query", func(t *testing.T) {
		got, err := tool.Invoke(context.Background(), ports.ToolInvocation{Arguments: json.RawMessage(`{"query":"   "}`)})

		require.NoError(t, err)
		assert.Contains(t, got.(map[string]any)["error"], "no search terms")
	})
}
