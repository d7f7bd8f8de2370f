package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-maestro/internal/ports"
)

const forecastBody = `{
	"current": {"time": "2025-08-14T09:00", "temperature_2m": 27.5, "relative_humidity_2m": 80, "wind_speed_10m": 5.2, "weather_code": 3},
	"current_units": {"temperature_2m": "°C", "relative_humidity_2m": "%", "wind_speed_10m": "km/h"},
	"daily": {
		"time": ["2025-08-14", "2025-08-15", "2025-08-16", "2025-08-17", "2025-08-18"],
		"temperature_2m_max": [31, 30, 29, 28, null],
		"temperature_2m_min": [24, 23, 22, 21, 20],
		"uv_index_max": [7.5, 6, 5, 4, 3],
		"wind_speed_10m_max": [10, 11, 12, 13, 14],
		"precipitation_probability_max": [10, 20, 60, 80, 0],
		"weather_code": [0, 61, 95, 100, 2]
	},
	"daily_units": {"temperature_2m_max": "°C", "temperature_2m_min": "°C", "wind_speed_10m_max": "km/h", "precipitation_probability_max": "%"}
}`

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return loc
}

type recorded struct {
	geocodeQuery string
	latitude     string
	longitude    string
	timezone     string
}

func newTestClient(t *testing.T, kakaoKey string, geocodeBody string) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}

	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/local/search/keyword.json", r.URL.Path)
		assert.Equal(t, "KakaoAK "+kakaoKey, r.Header.Get("Authorization"))
		rec.geocodeQuery = r.URL.Query().Get("query")
		if geocodeBody == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(geocodeBody))
	}))
	t.Cleanup(geo.Close)

	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		q := r.URL.Query()
		rec.latitude = q.Get("latitude")
		rec.longitude = q.Get("longitude")
		rec.timezone = q.Get("timezone")
		assert.Equal(t, "14", q.Get("forecast_days"))
		_, _ = w.Write([]byte(forecastBody))
	}))
	t.Cleanup(forecast.Close)

	c := NewClient(Config{
		KakaoAPIKey: kakaoKey,
		GeocodeURL:  geo.URL,
		ForecastURL: forecast.URL,
		Location:    seoul(t),
	}, nil, nil)
	return c, rec
}

func TestTool_FullForecast(t *testing.T) {
	// Given a geocoder that resolves the place
	c, rec := newTestClient(t, "kakao", `{"documents":[{"x":"127.027610","y":"37.497950"}]}`)

	// When the tool is invoked without a date
	got, err := Tool(c, nil).Invoke(context.Background(), ports.ToolInvocation{
		Arguments: json.RawMessage(`{"location":"강남역"}`),
		Today:     "2025-08-14 (목)",
	})

	// Then every forecast day is returned for the geocoded coordinates
	require.NoError(t, err)
	report := got.(*Report)
	assert.Equal(t, "강남역", rec.geocodeQuery)
	assert.Equal(t, "37.4980", rec.latitude)
	assert.Equal(t, "127.0276", rec.longitude)
	assert.Equal(t, "Asia/Seoul", rec.timezone)

	assert.Equal(t, Current{
		Location:        "강남역",
		ObservationTime: "2025-08-14T09:00",
		Temperature:     "27.5°C",
		Humidity:        "80%",
		WindSpeed:       "5.2km/h",
		Weather:         "Overcast",
	}, report.CurrentWeather)

	require.Len(t, report.DailyForecast, 5)
	assert.Equal(t, "Slight rain", report.DailyForecast[1].Weather)
	assert.Equal(t, "Unknown", report.DailyForecast[3].Weather, "unmapped codes")
	assert.Equal(t, "N/A", report.DailyForecast[4].TempMax, "null values")
	assert.Equal(t, "7.5", report.DailyForecast[0].UVIndexMax)
}

func TestTool_DateFilter(t *testing.T) {
	tests := []struct {
		name  string
		date  string
		today string
		want  []string
	}{
		{name: "tomorrow", date: "내일", today: "2025-08-14 (목)", want: []string{"2025-08-15"}},
		{name: "weekend", date: "이번 주말", today: "2025-08-14 (목)", want: []string{"2025-08-16", "2025-08-17"}},
		{name: "explicit date", date: "2025-08-18", today: "2025-08-14 (목)", want: []string{"2025-08-18"}},
		{name: "out of range", date: "2025-09-01", today: "2025-08-14 (목)", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, "kakao", `{"documents":[]}`)
			args, _ := json.Marshal(map[string]string{"location": "판교역", "date": tt.date})

			got, err := Tool(c, nil).Invoke(context.Background(), ports.ToolInvocation{Arguments: args, Today: tt.today})

			require.NoError(t, err)
			var dates []string
			for _, d := range got.(*Report).DailyForecast {
				dates = append(dates, d.Date)
			}
			assert.Equal(t, tt.want, dates)
		})
	}
}

func TestTool_UnresolvedDateReturnsEverything(t *testing.T) {
	c, _ := newTestClient(t, "kakao", `{"documents":[]}`)

	got, err := Tool(c, nil).Invoke(context.Background(), ports.ToolInvocation{
		Arguments: json.RawMessage(`{"location":"판교역","date":"언젠가"}`),
		Today:     "2025-08-14 (목)",
	})

	require.NoError(t, err)
	assert.Len(t, got.(*Report).DailyForecast, 5)
}

func TestTool_MissingTodayUsesClock(t *testing.T) {
	c, _ := newTestClient(t, "kakao", `{"documents":[]}`)
	now := func() time.Time { return time.Date(2025, 8, 16, 10, 0, 0, 0, seoul(t)) }

	got, err := Tool(c, now).Invoke(context.Background(), ports.ToolInvocation{
		Arguments: json.RawMessage(`{"location":"판교역","date":"오늘"}`),
	})

	require.NoError(t, err)
	require.Len(t, got.(*Report).DailyForecast, 1)
	assert.Equal(t, "2025-08-16", got.(*Report).DailyForecast[0].Date)
}

func TestGeocode_Fallback(t *testing.T) {
	tests := []struct {
		name string
		key  string
		body string
	}{
		{name: "no api key", key: "", body: `{"documents":[{"x":"1","y":"2"}]}`},
		{name: "no documents", key: "kakao", body: `{"documents":[]}`},
		{name: "upstream failure", key: "kakao", body: ""},
		{name: "unparsable coordinates", key: "kakao", body: `{"documents":[{"x":"east","y":"north"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.key, tt.body)

			got := c.Geocode(context.Background(), "어딘가")

			assert.Equal(t, Coordinates{Latitude: FallbackLatitude, Longitude: FallbackLongitude}, got)
		})
	}
}

func TestTool_ForecastFailureIsErrorResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	c := NewClient(Config{ForecastURL: server.URL, Location: seoul(t)}, nil, nil)

	got, err := Tool(c, nil).Invoke(context.Background(), ports.ToolInvocation{
		Arguments: json.RawMessage(`{"location":"판교역"}`),
		Today:     "2025-08-14 (목)",
	})

	require.NoError(t, err)
	assert.Contains(t, got.(map[string]any)["error"], "open-meteo forecast")
}

func TestDescribe(t *testing.T) {
	code := func(i int) *int { return &i }

	assert.Equal(t, "Clear sky", Describe(code(0)))
	assert.Equal(t, "Thunderstorm with heavy hail", Describe(code(99)))
	assert.Equal(t, "Unknown", Describe(code(4)))
	assert.Equal(t, "Unknown", Describe(nil))
}
