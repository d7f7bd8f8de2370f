package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-maestro/internal/ports"
)

// 2025-08-11 .. 2025-08-15 09:00 KST
var timestamps = []int64{1754870400, 1754956800, 1755043200, 1755129600, 1755216000}

func chartBody(symbol string, opens, closes []float64) string {
	nums := func(vs []float64) string {
		parts := make([]string, len(vs))
		for i, v := range vs {
			if v == 0 {
				parts[i] = "null"
				continue
			}
			parts[i] = fmt.Sprint(v)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	ts, _ := json.Marshal(timestamps[:len(closes)])
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"currency":"KRW","symbol":%q},"timestamp":%s,
		"indicators":{"quote":[{"open":%s,"high":%s,"low":%s,"close":%s,"volume":[100,200,300,400,500]}]}}],"error":null}}`,
		symbol, ts, nums(opens), nums(closes), nums(opens), nums(closes))
}

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return loc
}

func newTestClient(t *testing.T, bodies map[string]string) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "5d", r.URL.Query().Get("range"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		symbol := strings.TrimPrefix(r.URL.Path, "/v8/finance/chart/")
		body, ok := bodies[symbol]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return NewClient(server.URL, seoul(t), nil), &hits
}

func TestResolveSymbol(t *testing.T) {
	tests := []struct {
		input      string
		wantName   string
		wantSymbol string
		wantErr    bool
	}{
		{input: "삼성전자", wantName: "삼성전자", wantSymbol: "005930.KS"},
		{input: "naver", wantName: "NAVER", wantSymbol: "035420.KS"},
		{input: "SK하이닉스 주가", wantName: "SK하이닉스", wantSymbol: "000660.KS"},
		{input: "035720.KS", wantName: "카카오", wantSymbol: "035720.KS"},
		{input: "aapl.us", wantName: "aapl.us", wantSymbol: "AAPL.US"},
		{input: "현대차", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			name, symbol, err := ResolveSymbol(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownCompany)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantSymbol, symbol)
		})
	}
}

func TestPriceTool(t *testing.T) {
	// Given five days of prices with a null close on the third day
	c, _ := newTestClient(t, map[string]string{
		"005930.KS": chartBody("005930.KS",
			[]float64{70000, 71000, 72000, 73000, 74000},
			[]float64{71000, 72000, 0, 74000, 77000}),
	})

	// When the price tool is invoked by company name
	got, err := PriceTool(c).Invoke(context.Background(), ports.ToolInvocation{
		Arguments: json.RawMessage(`{"company":"삼성전자"}`),
	})

	// Then the null day is skipped and the trend is computed from the first open
	require.NoError(t, err)
	q := got.(*Quote)
	assert.Equal(t, "005930.KS", q.Symbol)
	assert.Equal(t, "KRW", q.Currency)
	require.Len(t, q.Days, 4)
	assert.Equal(t, "2025-08-11", q.Days[0].Date)
	assert.Equal(t, int64(100), q.Days[0].Volume)
	assert.Equal(t, 0.0, q.Days[0].ChangePct)
	assert.InDelta(t, 2.78, q.Days[2].ChangePct, 1e-9, "74000 vs 72000")
	assert.InDelta(t, 10.0, q.ChangePct, 1e-9, "77000 vs 70000")
	assert.Equal(t, TrendUp, q.Trend)
}

func TestPriceTool_Errors(t *testing.T) {
	c, _ := newTestClient(t, nil)

	tests := []struct {
		name    string
		company string
		want    string
	}{
		{name: "unknown company", company: "현대차", want: "unknown company"},
		{name: "upstream not found", company: "LG화학", want: "chart 051910.KS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, _ := json.Marshal(map[string]string{"company": tt.company})

			got, err := PriceTool(c).Invoke(context.Background(), ports.ToolInvocation{Arguments: args})

			require.NoError(t, err)
			assert.Contains(t, got.(map[string]any)["error"], tt.want)
		})
	}
}

func TestTrend(t *testing.T) {
	assert.Equal(t, TrendUp, trend(0.01))
	assert.Equal(t, TrendDown, trend(-3))
	assert.Equal(t, TrendFlat, trend(0))
}

func TestRecommendTool(t *testing.T) {
	// Given four symbols with data and one missing
	flat := []float64{100, 100, 100, 100, 100}
	c, hits := newTestClient(t, map[string]string{
		"005930.KS": chartBody("005930.KS", flat, []float64{100, 101, 102, 103, 105}),
		"000660.KS": chartBody("000660.KS", flat, []float64{100, 110, 115, 118, 120}),
		"035720.KS": chartBody("035720.KS", flat, []float64{100, 99, 98, 97, 90}),
		"035420.KS": chartBody("035420.KS", flat, []float64{100, 100, 100, 100, 100}),
	})

	// When two recommendations are requested
	got, err := RecommendTool(c).Invoke(context.Background(), ports.ToolInvocation{
		Arguments: json.RawMessage(`{"count":2}`),
	})

	// Then the top gainers are ranked and every symbol was queried
	require.NoError(t, err)
	recs := got.([]Recommendation)
	require.Len(t, recs, 2)
	assert.Equal(t, Recommendation{Rank: 1, Company: "SK하이닉스", Symbol: "000660.KS", Close: 120, ChangePct: 20, Trend: TrendUp}, recs[0])
	assert.Equal(t, "삼성전자", recs[1].Company)
	assert.Equal(t, 2, recs[1].Rank)
	assert.Equal(t, int32(len(Symbols)), hits.Load())
}

func TestRecommend_DefaultCount(t *testing.T) {
	flat := []float64{100, 100, 100, 100, 100}
	bodies := map[string]string{}
	for _, sym := range Symbols {
		bodies[sym] = chartBody(sym, flat, flat)
	}
	c, _ := newTestClient(t, bodies)

	recs, err := c.Recommend(context.Background(), 0)

	require.NoError(t, err)
	assert.Len(t, recs, 3)
	for _, r := range recs {
		assert.Equal(t, TrendFlat, r.Trend)
	}
}

func TestRecommend_AllFail(t *testing.T) {
	c, _ := newTestClient(t, nil)

	_, err := c.Recommend(context.Background(), 3)

	assert.ErrorContains(t, err, "no quotes available")
}
