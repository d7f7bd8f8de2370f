package mail

import (
	"context"
	"fmt"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/ports"
)

// Tool names.
const (
	FindToolName      = "find_mails"
	DraftToolName     = "draft_mail"
	SummarizeToolName = "summarize_conversation_in_mails"
)

const findSchema = `{
	"type": "object",
	"properties": {
		"sender": {"type": "string", "description": "보낸 사람 이름 또는 이메일"},
		"query": {"type": "string", "description": "Gmail 검색어"},
		"start_date": {"type": "string", "description": "이 날짜 이후 (YYYY-MM-DD)"},
		"end_date": {"type": "string", "description": "이 날짜 이전 (YYYY-MM-DD)"},
		"has_attachment": {"type": "boolean"},
		"is_unread": {"type": "boolean"},
		"exclude_label": {"type": "string"},
		"include_body": {"type": "boolean", "description": "본문 포함 여부"},
		"search_in_label": {"type": "string", "description": "검색할 메일함. 예: 'inbox', 'draft', 'sent'"}
	}
}`

const draftSchema = `{
	"type": "object",
	"properties": {
		"recipient": {"type": "string", "minLength": 1, "description": "받는 사람의 이메일 주소 또는 이름"},
		"subject": {"type": "string", "description": "메일 제목"},
		"body": {"type": "string", "description": "메일 본문"}
	},
	"required": ["recipient", "subject", "body"]
}`

const summarizeSchema = `{
	"type": "object",
	"properties": {
		"person": {"type": "string", "minLength": 1, "description": "대화 내용을 요약할 상대방의 이름 또는 이메일 주소"}
	},
	"required": ["person"]
}`

// FindTool exposes Find.
func FindTool(s *Service) ports.Tool {
	return tools.New(FindToolName,
		"사용자의 Gmail에서 특정 조건에 맞는 이메일 또는 초안을 검색합니다.",
		findSchema,
		tools.Typed(func(ctx context.Context, o FindOptions, _ ports.ToolInvocation) any {
			mails, err := s.Find(ctx, o)
			if err != nil {
				return tools.ErrorResult(err)
			}
			if len(mails) == 0 {
				return "해당 조건에 맞는 메일이 없습니다."
			}
			return mails
		}))
}

type draftArgs struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// DraftTool exposes Draft. It has side effects and is never cached.
func DraftTool(s *Service) ports.Tool {
	return tools.New(DraftToolName,
		"이메일 초안을 생성하여 Gmail '초안' 보관함에 저장합니다. 메일을 발송하지는 않습니다.",
		draftSchema,
		tools.Typed(func(ctx context.Context, a draftArgs, _ ports.ToolInvocation) any {
			id, err := s.Draft(ctx, a.Recipient, a.Subject, a.Body)
			if err != nil {
				return tools.ErrorResult(err)
			}
			return map[string]any{
				"draft_id": id,
				"message":  fmt.Sprintf("'%s'님에게 보내는 메일 초안을 성공적으로 생성했습니다. Gmail 초안함에서 확인하세요.", a.Recipient),
			}
		}),
		tools.Mutating())
}

// SummarizeTool exposes Summarize.
func SummarizeTool(s *Service) ports.Tool {
	return tools.New(SummarizeToolName,
		"특정 인물과 주고받은 가장 최근의 이메일 대화(스레드) 내용을 찾아 요약합니다.",
		summarizeSchema,
		tools.Typed(func(ctx context.Context, a struct {
			Person string `json:"person"`
		}, _ ports.ToolInvocation) any {
			summary, err := s.Summarize(ctx, a.Person)
			if err != nil {
				return tools.ErrorResult(err)
			}
			return summary
		}))
}
