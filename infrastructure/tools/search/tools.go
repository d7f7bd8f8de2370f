package search

import (
	"context"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/ports"
)

// Tool names.
const (
	GeneralToolName  = "general_search"
	TechNewsToolName = "tech_news_search"
	LinksToolName    = "find_relevant_links"
)

const querySchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 1, "description": "검색어"}
	},
	"required": ["query"]
}`

type queryArgs struct {
	Query string `json:"query"`
}

// Link is one entry of a find_relevant_links result.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// GeneralTool answers general questions from the web (top 3 results).
func GeneralTool(c *Client) ports.Tool {
	return tools.New(GeneralToolName,
		"사용자의 일반적인 질문에 대해 웹을 검색하고 요약된 답변을 찾을 때 사용합니다.",
		querySchema,
		tools.Typed(func(ctx context.Context, a queryArgs, _ ports.ToolInvocation) any {
			resp, err := c.Search(ctx, Request{Query: a.Query, MaxResults: 3, IncludeAnswer: true})
			if err != nil {
				return tools.ErrorResult(err)
			}
			return resp
		}))
}

// TechNewsTool searches TechCrunch and The Verge.
func TechNewsTool(c *Client) ports.Tool {
	return tools.New(TechNewsToolName,
		"TechCrunch나 The Verge에서 최신 기술 뉴스를 검색할 때 사용합니다.",
		querySchema,
		tools.Typed(func(ctx context.Context, a queryArgs, _ ports.ToolInvocation) any {
			resp, err := c.Search(ctx, Request{
				Query:          a.Query,
				MaxResults:     3,
				IncludeAnswer:  true,
				IncludeDomains: TechNewsDomains,
				Topic:          "news",
			})
			if err != nil {
				return tools.ErrorResult(err)
			}
			return resp
		}))
}

// LinksTool returns up to five relevant pages without a synthesized answer.
func LinksTool(c *Client) ports.Tool {
	return tools.New(LinksToolName,
		"사용자가 특정 주제에 대한 '링크', '웹사이트', '자료', '튜토리얼' 등을 찾아달라고 요청할 때 사용합니다. 요약된 답변 대신 관련 웹페이지 목록을 제공합니다.",
		querySchema,
		tools.Typed(func(ctx context.Context, a queryArgs, _ ports.ToolInvocation) any {
			resp, err := c.Search(ctx, Request{Query: a.Query, MaxResults: 5})
			if err != nil {
				return tools.ErrorResult(err)
			}
			links := make([]Link, 0, len(resp.Results))
			for _, r := range resp.Results {
				links = append(links, Link{Title: r.Title, URL: r.URL})
			}
			return links
		}))
}
