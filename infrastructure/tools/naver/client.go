// Package naver wraps the Naver local and shopping search APIs.
package naver

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/ports"
)

// DefaultBaseURL is the Naver Open API endpoint.
const DefaultBaseURL = "https://openapi.naver.com"

// Client calls the Naver search APIs.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *tools.HTTPClient
}

// NewClient creates a client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL, clientID, clientSecret string, httpClient *tools.HTTPClient) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.Wrap(ports.ErrMissingCredentials, "naver client id and secret are required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = tools.NewHTTPClient()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         httpClient,
	}, nil
}

// Place is one local search hit.
type Place struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	Address     string `json:"address"`
	RoadAddress string `json:"road_address,omitempty"`
	Link        string `json:"link"`
}

// Offer is one shopping search hit.
type Offer struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Price string `json:"price"`
	Mall  string `json:"mall"`
}

type localResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Category    string `json:"category"`
		Address     string `json:"address"`
		RoadAddress string `json:"roadAddress"`
	} `json:"items"`
}

type shopResponse struct {
	Items []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		LPrice   string `json:"lprice"`
		MallName string `json:"mallName"`
	} `json:"items"`
}

// SearchPlaces queries the local search API. display is clamped to 1..5
// and sort is "random" or "comment".
func (c *Client) SearchPlaces(ctx context.Context, query string, display int, sort string) ([]Place, error) {
	if display < 1 || display > 5 {
		display = 5
	}
	if sort != "comment" {
		sort = "random"
	}

	var resp localResponse
	err := c.http.GetJSON(ctx, c.baseURL+"/v1/search/local.json", url.Values{
		"query":   {query},
		"display": {strconv.Itoa(display)},
		"start":   {"1"},
		"sort":    {sort},
	}, c.header(), &resp)
	if err != nil {
		return nil, errors.Wrap(err, "naver local search")
	}

	places := make([]Place, 0, len(resp.Items))
	for _, it := range resp.Items {
		places = append(places, Place{
			Title:       stripTags(it.Title),
			Category:    it.Category,
			Address:     it.Address,
			RoadAddress: it.RoadAddress,
			Link:        it.Link,
		})
	}
	return places, nil
}

// SearchShopping queries the shopping API sorted by similarity, limited to
// Naver Pay sellers.
func (c *Client) SearchShopping(ctx context.Context, query string, display int) ([]Offer, error) {
	if display < 1 || display > 100 {
		display = 10
	}

	var resp shopResponse
	err := c.http.GetJSON(ctx, c.baseURL+"/v1/search/shop.json", url.Values{
		"query":   {query},
		"display": {strconv.Itoa(display)},
		"start":   {"1"},
		"sort":    {"sim"},
		"filter":  {"naverpay"},
	}, c.header(), &resp)
	if err != nil {
		return nil, errors.Wrap(err, "naver shopping search")
	}

	offers := make([]Offer, 0, len(resp.Items))
	for _, it := range resp.Items {
		offers = append(offers, Offer{
			Title: stripTags(it.Title),
			Link:  it.Link,
			Price: it.LPrice,
			Mall:  it.MallName,
		})
	}
	return offers, nil
}

func (c *Client) header() http.Header {
	return http.Header{
		"X-Naver-Client-Id":     {c.clientID},
		"X-Naver-Client-Secret": {c.clientSecret},
	}
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// stripTags removes the <b> highlight markup Naver puts around matches.
func stripTags(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}
