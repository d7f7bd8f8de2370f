package stock

import (
	"context"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/ports"
)

// Tool names.
const (
	PriceToolName     = "get_stock_price"
	RecommendToolName = "recommend_stock"
)

const priceSchema = `{
	"type": "object",
	"properties": {
		"company": {"type": "string", "minLength": 1, "description": "종목명 또는 종목 코드 (예: '삼성전자', '005930.KS')"}
	},
	"required": ["company"]
}`

const recommendSchema = `{
	"type": "object",
	"properties": {
		"count": {"type": "integer", "minimum": 1, "maximum": 5, "description": "추천할 종목 수 (기본 3)"}
	}
}`

// PriceTool exposes Price.
func PriceTool(c *Client) ports.Tool {
	return tools.New(PriceToolName,
		"특정 종목의 최근 5일간 주가 정보(시가, 종가, 거래량, 변동률, 추세)를 조회합니다.",
		priceSchema,
		tools.Typed(func(ctx context.Context, a struct {
			Company string `json:"company"`
		}, _ ports.ToolInvocation) any {
			q, err := c.Price(ctx, a.Company)
			if err != nil {
				return tools.ErrorResult(err)
			}
			return q
		}))
}

// RecommendTool exposes Recommend.
func RecommendTool(c *Client) ports.Tool {
	return tools.New(RecommendToolName,
		"최근 5일간 상승률이 높은 종목을 추천합니다.",
		recommendSchema,
		tools.Typed(func(ctx context.Context, a struct {
			Count int `json:"count"`
		}, _ ports.ToolInvocation) any {
			recs, err := c.Recommend(ctx, a.Count)
			if err != nil {
				return tools.ErrorResult(err)
			}
			return recs
		}))
}
