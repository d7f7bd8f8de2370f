package calendar

import (
	"context"
	"time"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

// Tool names.
const (
	CreateToolName = "create_calendar_event"
	ListToolName   = "list_calendar_events"
	ModifyToolName = "modify_calendar_event"
	DeleteToolName = "delete_calendar_event"
)

const createSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1, "description": "이벤트 제목. 예: '팀 회의', '강남 맛집 방문'"},
		"start": {"type": "string", "description": "시작 시간 (ISO 8601, 예: '2025-07-01T10:00:00+09:00')"},
		"end": {"type": "string", "description": "종료 시간 (ISO 8601, 예: '2025-07-01T11:00:00+09:00')"},
		"description": {"type": "string", "description": "이벤트 상세 설명"},
		"location": {"type": "string", "description": "장소"},
		"attendees": {"type": "array", "items": {"type": "string"}, "description": "참석자 이메일 목록"}
	},
	"required": ["title", "start", "end"]
}`

const listSchema = `{
	"type": "object",
	"properties": {
		"date": {"type": "string", "description": "조회할 날짜 표현 (예: '오늘', '내일', '이번 주말', '2025-07-01')"},
		"start_date": {"type": "string", "description": "조회 시작 날짜 (YYYY-MM-DD)"},
		"end_date": {"type": "string", "description": "조회 종료 날짜 (YYYY-MM-DD)"},
		"keyword": {"type": "string", "description": "제목이나 설명에서 찾을 키워드"}
	}
}`

const modifySchema = `{
	"type": "object",
	"properties": {
		"event_id": {"type": "string", "minLength": 1, "description": "수정할 이벤트 ID"},
		"title": {"type": "string"},
		"start": {"type": "string", "description": "새 시작 시간 (ISO 8601)"},
		"end": {"type": "string", "description": "새 종료 시간 (ISO 8601)"},
		"description": {"type": "string"},
		"location": {"type": "string"},
		"attendees_to_add": {"type": "array", "items": {"type": "string"}},
		"attendees_to_remove": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["event_id"]
}`

const deleteSchema = `{
	"type": "object",
	"properties": {
		"event_id": {"type": "string", "minLength": 1, "description": "삭제할 이벤트 ID"}
	},
	"required": ["event_id"]
}`

// CreateTool exposes Create.
func CreateTool(s *Service) ports.Tool {
	return tools.New(CreateToolName,
		"Google 캘린더에 새로운 이벤트를 생성합니다. 방문 계획이나 약속을 캘린더에 추가할 때 사용합니다.",
		createSchema,
		tools.Typed(func(ctx context.Context, in NewEvent, _ ports.ToolInvocation) any {
			ev, err := s.Create(ctx, in)
			if err != nil {
				return tools.ErrorResult(err)
			}
			return ev
		}),
		tools.Mutating())
}

// ListTool exposes List. Relative dates resolve against the turn date.
func ListTool(s *Service) ports.Tool {
	return tools.New(ListToolName,
		"Google 캘린더에서 특정 날짜, 기간 또는 키워드에 해당하는 이벤트를 조회합니다.",
		listSchema,
		tools.Typed(func(ctx context.Context, q ListQuery, inv ports.ToolInvocation) any {
			events, err := s.List(ctx, q, s.today(inv))
			if err != nil {
				return tools.ErrorResult(err)
			}
			return events
		}))
}

// ModifyTool exposes Modify.
func ModifyTool(s *Service) ports.Tool {
	return tools.New(ModifyToolName,
		"Google 캘린더의 기존 이벤트를 수정합니다. 제목, 시간, 장소, 설명, 참석자를 변경할 수 있습니다.",
		modifySchema,
		tools.Typed(func(ctx context.Context, c Changes, _ ports.ToolInvocation) any {
			ev, err := s.Modify(ctx, c)
			if err != nil {
				return tools.ErrorResult(err)
			}
			return ev
		}),
		tools.Mutating())
}

// DeleteTool exposes Delete.
func DeleteTool(s *Service) ports.Tool {
	return tools.New(DeleteToolName,
		"Google 캘린더에서 특정 이벤트를 삭제합니다.",
		deleteSchema,
		tools.Typed(func(ctx context.Context, a struct {
			EventID string `json:"event_id"`
		}, _ ports.ToolInvocation) any {
			if err := s.Delete(ctx, a.EventID); err != nil {
				return tools.ErrorResult(err)
			}
			return map[string]any{"status": "success", "message": deletedMessage(a.EventID)}
		}),
		tools.Mutating())
}

func (s *Service) today(inv ports.ToolInvocation) time.Time {
	if t, err := domain.ParseToday(inv.Today, s.loc); err == nil {
		return t
	}
	return s.now().In(s.loc)
}
