package naver

import (
	"context"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/ports"
)

// Tool names.
const (
	PlaceToolName    = "search_naver_place"
	ShoppingToolName = "search_naver_shopping"
)

const placeSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "검색어 (예: '강남 카페', '판교 맛집')"},
		"display": {"type": "integer", "minimum": 1, "maximum": 5, "description": "검색 결과 개수 (1~5)"},
		"sort": {"type": "string", "enum": ["random", "comment"], "description": "리뷰가 많은 순서가 필요하면 'comment'"}
	},
	"required": ["query"]
}`

const shoppingSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "찾고자 하는 상품 키워드 (예: '보온 텀블러')"}
	},
	"required": ["query"]
}`

type placeArgs struct {
	Query   string `json:"query"`
	Display int    `json:"display"`
	Sort    string `json:"sort"`
}

type shoppingArgs struct {
	Query string `json:"query"`
}

// PlaceTool exposes SearchPlaces.
func PlaceTool(c *Client) ports.Tool {
	return tools.New(PlaceToolName,
		"네이버 지역 검색으로 장소(맛집, 카페, 놀거리, 숙소 등)를 찾습니다.",
		placeSchema,
		tools.Typed(func(ctx context.Context, args placeArgs, _ ports.ToolInvocation) any {
			places, err := c.SearchPlaces(ctx, args.Query, args.Display, args.Sort)
			if err != nil {
				return tools.ErrorResult(err)
			}
			return places
		}))
}

// ShoppingTool exposes SearchShopping.
func ShoppingTool(c *Client) ports.Tool {
	return tools.New(ShoppingToolName,
		"사용자가 상품 검색, 구매, 추천을 원할 때 네이버 쇼핑에서 관련 상품을 찾습니다.",
		shoppingSchema,
		tools.Typed(func(ctx context.Context, args shoppingArgs, _ ports.ToolInvocation) any {
			offers, err := c.SearchShopping(ctx, args.Query, 10)
			if err != nil {
				return tools.ErrorResult(err)
			}
			return offers
		}))
}
