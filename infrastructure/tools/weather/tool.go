package weather

import (
	"context"
	"time"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

// ToolName is the name the weather tool is declared under.
const ToolName = "get_weather"

const schema = `{
	"type": "object",
	"properties": {
		"location": {"type": "string", "description": "날씨를 조회할 장소 (예: '판교역', '강남역', '서울')"},
		"date": {"type": "string", "description": "조회할 날짜 표현 (예: '오늘', '내일', '이번 주말', '2025-08-20'). 생략하면 14일 전체"}
	},
	"required": ["location"]
}`

type args struct {
	Location string `json:"location"`
	Date     string `json:"date"`
}

// Tool exposes Forecast. now supplies the fallback date when the
// invocation carries no current-date context.
func Tool(c *Client, now func() time.Time) ports.Tool {
	if now == nil {
		now = time.Now
	}
	return tools.New(ToolName,
		"지정한 장소의 현재 날씨와 최대 14일간의 일별 예보를 알려줍니다. date로 특정 날짜나 주말만 볼 수 있습니다.",
		schema,
		tools.Typed(func(ctx context.Context, a args, inv ports.ToolInvocation) any {
			today, err := domain.ParseToday(inv.Today, c.cfg.Location)
			if err != nil {
				today = now().In(c.cfg.Location)
			}
			report, err := c.Forecast(ctx, a.Location, a.Date, today)
			if err != nil {
				return tools.ErrorResult(err)
			}
			return report
		}))
}
