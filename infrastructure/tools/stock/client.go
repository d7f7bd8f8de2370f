// Package stock reads recent daily prices for Korean listed companies from
// the Yahoo Finance chart API.
package stock

import (
	"context"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-maestro/infrastructure/tools"
)

// DefaultBaseURL is the Yahoo Finance query host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Symbols maps company names to exchange symbols.
var Symbols = map[string]string{
	"삼성전자":   "005930.KS",
	"SK하이닉스": "000660.KS",
	"카카오":    "035720.KS",
	"NAVER":  "035420.KS",
	"LG화학":   "051910.KS",
}

// Trend labels.
const (
	TrendUp   = "상승"
	TrendDown = "하락"
	TrendFlat = "보합"
)

// ErrUnknownCompany is returned for names missing from Symbols.
var ErrUnknownCompany = errors.New("unknown company")

// Client fetches chart data.
type Client struct {
	baseURL string
	loc     *time.Location
	http    *tools.HTTPClient
}

// NewClient creates a Client. Dates are reported in loc.
func NewClient(baseURL string, loc *time.Location, httpClient *tools.HTTPClient) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if loc == nil {
		loc = time.UTC
	}
	if httpClient == nil {
		httpClient = tools.NewHTTPClient()
	}
	return &Client{baseURL: baseURL, loc: loc, http: httpClient}
}

// DayPrice is one trading day.
type DayPrice struct {
	Date      string  `json:"date"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	ChangePct float64 `json:"change_pct"`
}

// Quote is the normalized get_stock_price result.
type Quote struct {
	Company   string     `json:"company"`
	Symbol    string     `json:"symbol"`
	Currency  string     `json:"currency,omitempty"`
	Days      []DayPrice `json:"data"`
	ChangePct float64    `json:"change_pct"`
	Trend     string     `json:"trend"`
}

// ResolveSymbol maps a company name to its symbol. Known names match
// case-insensitively and by substring; anything that already looks like a
// symbol is passed through.
func ResolveSymbol(company string) (string, string, error) {
	company = strings.TrimSpace(company)
	if sym, ok := Symbols[company]; ok {
		return company, sym, nil
	}
	upper := strings.ToUpper(company)
	for name, sym := range Symbols {
		if strings.Contains(upper, strings.ToUpper(name)) || upper == sym {
			return name, sym, nil
		}
	}
	if strings.Contains(company, ".") && !strings.ContainsAny(company, " \t") {
		return company, upper, nil
	}
	return "", "", errors.Wrapf(ErrUnknownCompany, "%q", company)
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency string `json:"currency"`
				Symbol   string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Price returns the last five trading days for company.
func (c *Client) Price(ctx context.Context, company string) (*Quote, error) {
	name, symbol, err := ResolveSymbol(company)
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	err = c.http.GetJSON(ctx, c.baseURL+"/v8/finance/chart/"+url.PathEscape(symbol),
		url.Values{"range": {"5d"}, "interval": {"1d"}}, nil, &resp)
	if err != nil {
		return nil, errors.Wrapf(err, "chart %s", symbol)
	}
	if e := resp.Chart.Error; e != nil {
		return nil, errors.Errorf("chart %s: %s: %s", symbol, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, errors.Errorf("chart %s: no data", symbol)
	}

	result := resp.Chart.Result[0]
	q := result.Indicators.Quote[0]
	quote := &Quote{Company: name, Symbol: symbol, Currency: result.Meta.Currency}

	var prevClose float64
	for i, ts := range result.Timestamp {
		closePrice := at(q.Close, i)
		if closePrice == 0 {
			continue
		}
		day := DayPrice{
			Date:  time.Unix(ts, 0).In(c.loc).Format("2006-01-02"),
			Open:  at(q.Open, i),
			High:  at(q.High, i),
			Low:   at(q.Low, i),
			Close: closePrice,
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			day.Volume = *q.Volume[i]
		}
		if prevClose > 0 {
			day.ChangePct = percent(prevClose, closePrice)
		}
		prevClose = closePrice
		quote.Days = append(quote.Days, day)
	}
	if len(quote.Days) == 0 {
		return nil, errors.Errorf("chart %s: no closing prices", symbol)
	}

	first, last := quote.Days[0], quote.Days[len(quote.Days)-1]
	base := first.Open
	if base == 0 {
		base = first.Close
	}
	quote.ChangePct = percent(base, last.Close)
	quote.Trend = trend(quote.ChangePct)
	return quote, nil
}

// Recommendation is one ranked entry of recommend_stock.
type Recommendation struct {
	Rank      int     `json:"rank"`
	Company   string  `json:"company"`
	Symbol    string  `json:"symbol"`
	Close     float64 `json:"close"`
	ChangePct float64 `json:"change_pct"`
	Trend     string  `json:"trend"`
}

// Recommend ranks every known symbol by five-day change and returns the
// top count. Symbols whose lookup fails are skipped; if all fail the last
// error is returned.
func (c *Client) Recommend(ctx context.Context, count int) ([]Recommendation, error) {
	if count <= 0 || count > len(Symbols) {
		count = min(3, len(Symbols))
	}

	names := make([]string, 0, len(Symbols))
	for name := range Symbols {
		names = append(names, name)
	}
	sort.Strings(names)

	quotes := make([]*Quote, len(names))
	errs := make([]error, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, name := range names {
		g.Go(func() error {
			quotes[i], errs[i] = c.Price(gctx, name)
			return nil
		})
	}
	_ = g.Wait()

	var recs []Recommendation
	var lastErr error
	for i, q := range quotes {
		if errs[i] != nil {
			lastErr = errs[i]
			continue
		}
		recs = append(recs, Recommendation{
			Company:   q.Company,
			Symbol:    q.Symbol,
			Close:     q.Days[len(q.Days)-1].Close,
			ChangePct: q.ChangePct,
			Trend:     q.Trend,
		})
	}
	if len(recs) == 0 {
		return nil, errors.Wrap(lastErr, "no quotes available")
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].ChangePct > recs[j].ChangePct })
	if len(recs) > count {
		recs = recs[:count]
	}
	for i := range recs {
		recs[i].Rank = i + 1
	}
	return recs, nil
}

func at(values []*float64, i int) float64 {
	if i < len(values) && values[i] != nil {
		return *values[i]
	}
	return 0
}

func percent(from, to float64) float64 {
	return math.Round((to-from)/from*10000) / 100
}

func trend(changePct float64) string {
	switch {
	case changePct > 0:
		return TrendUp
	case changePct < 0:
		return TrendDown
	default:
		return TrendFlat
	}
}
