package document

import (
	"context"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/ports"
)

// ToolName is the name the document tool is declared under.
const ToolName = "get_document"

const schema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 1, "description": "찾을 문서의 키워드 (예: 'KPI 회의록')"}
	},
	"required": ["query"]
}`

// Tool exposes Search over the imported documents.
func Tool(s *Store) ports.Tool {
	return tools.New(ToolName,
		"사내 문서 저장소에서 회의록, 보고서 등 문서를 키워드로 찾아 내용을 가져옵니다.",
		schema,
		tools.Typed(func(ctx context.Context, a struct {
			Query string `json:"query"`
		}, _ ports.ToolInvocation) any {
			matches, err := s.Search(ctx, a.Query, 3)
			if err != nil {
				return tools.ErrorResult(err)
			}
			if len(matches) == 0 {
				return "관련 문서를 찾을 수 없습니다."
			}
			return matches
		}))
}
