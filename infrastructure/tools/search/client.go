// Package search wraps the Tavily search API as three tools: general web
// question answering, tech news restricted to a few outlets, and link
// discovery.
package search

import (
	"context"
	"net/http"

	"github.com/Laisky/errors/v2"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/ports"
)

// DefaultBaseURL is the Tavily API root.
const DefaultBaseURL = "https://api.tavily.com"

// TechNewsDomains are the outlets tech_news_search is restricted to.
var TechNewsDomains = []string{"techcrunch.com", "theverge.com"}

// Client calls the Tavily search endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *tools.HTTPClient
}

// NewClient creates a Client. apiKey is required.
func NewClient(baseURL, apiKey string, httpClient *tools.HTTPClient) (*Client, error) {
	if apiKey == "" {
		return nil, errors.Wrap(ports.ErrMissingCredentials, "tavily api key")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = tools.NewHTTPClient()
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, http: httpClient}, nil
}

// Request is the subset of Tavily search parameters the tools use.
type Request struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results,omitempty"`
	IncludeAnswer  bool     `json:"include_answer"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	Topic          string   `json:"topic,omitempty"`
}

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// Response is the normalized search response.
type Response struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer,omitempty"`
	Results []Result `json:"results"`
}

// Search runs one Tavily query.
func (c *Client) Search(ctx context.Context, req Request) (*Response, error) {
	var resp Response
	header := http.Header{"Authorization": {"Bearer " + c.apiKey}}
	if err := c.http.PostJSON(ctx, c.baseURL+"/search", header, req, &resp); err != nil {
		return nil, errors.Wrapf(err, "tavily search %q", req.Query)
	}
	if resp.Results == nil {
		resp.Results = []Result{}
	}
	return &resp, nil
}
