// Package weather resolves a place name with Kakao local search and reads
// the current conditions and a 14-day forecast from Open-Meteo.
package weather

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/domain"
)

// Default endpoints.
const (
	DefaultGeocodeURL  = "https://dapi.kakao.com"
	DefaultForecastURL = "https://api.open-meteo.com"
)

// Fallback coordinates (Pangyo) used when geocoding finds nothing.
const (
	FallbackLatitude  = 37.3947
	FallbackLongitude = 127.1111
)

// Config holds endpoints and credentials.
type Config struct {
	KakaoAPIKey string
	GeocodeURL  string
	ForecastURL string

	// Location is the timezone forecasts are reported in and relative
	// dates are resolved in.
	Location *time.Location
}

// Client fetches weather for named places.
type Client struct {
	cfg    Config
	http   *tools.HTTPClient
	logger *zap.Logger
}

// NewClient creates a Client. Without a Kakao key every lookup uses the
// fallback coordinates.
func NewClient(cfg Config, httpClient *tools.HTTPClient, logger *zap.Logger) *Client {
	if cfg.GeocodeURL == "" {
		cfg.GeocodeURL = DefaultGeocodeURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = DefaultForecastURL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if httpClient == nil {
		httpClient = tools.NewHTTPClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// Current is the observation at request time.
type Current struct {
	Location        string `json:"location"`
	ObservationTime string `json:"observation_time"`
	Temperature     string `json:"temperature"`
	Humidity        string `json:"humidity"`
	WindSpeed       string `json:"wind_speed"`
	Weather         string `json:"weather"`
}

// Day is one daily forecast entry.
type Day struct {
	Date                     string `json:"date"`
	TempMax                  string `json:"temp_max"`
	TempMin                  string `json:"temp_min"`
	UVIndexMax               string `json:"uv_index_max"`
	WindSpeedMax             string `json:"wind_speed_max"`
	PrecipitationProbability string `json:"precipitation_probability"`
	Weather                  string `json:"weather"`
}

// Report is the normalized tool result.
type Report struct {
	CurrentWeather Current `json:"current_weather"`
	DailyForecast  []Day   `json:"daily_forecast"`
}

// Coordinates is a latitude/longitude pair rounded to four decimals.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

type kakaoResponse struct {
	Documents []struct {
		X string `json:"x"`
		Y string `json:"y"`
	} `json:"documents"`
}

// Geocode returns the first keyword-search hit for location. Any failure
// falls back to the default coordinates.
func (c *Client) Geocode(ctx context.Context, location string) Coordinates {
	fallback := Coordinates{Latitude: FallbackLatitude, Longitude: FallbackLongitude}
	if c.cfg.KakaoAPIKey == "" {
		return fallback
	}

	var resp kakaoResponse
	err := c.http.GetJSON(ctx, c.cfg.GeocodeURL+"/v2/local/search/keyword.json", url.Values{
		"query": {location},
		"page":  {"1"},
		"size":  {"15"},
		"sort":  {"accuracy"},
	}, http.Header{"Authorization": {"KakaoAK " + c.cfg.KakaoAPIKey}}, &resp)
	if err != nil {
		c.logger.Warn("geocode failed, using fallback", zap.String("location", location), zap.Error(err))
		return fallback
	}
	if len(resp.Documents) == 0 {
		return fallback
	}

	lat, errLat := strconv.ParseFloat(resp.Documents[0].Y, 64)
	lon, errLon := strconv.ParseFloat(resp.Documents[0].X, 64)
	if errLat != nil || errLon != nil {
		return fallback
	}
	return Coordinates{Latitude: round4(lat), Longitude: round4(lon)}
}

type forecastResponse struct {
	Current struct {
		Time        string   `json:"time"`
		Temperature *float64 `json:"temperature_2m"`
		Humidity    *float64 `json:"relative_humidity_2m"`
		WindSpeed   *float64 `json:"wind_speed_10m"`
		WeatherCode *int     `json:"weather_code"`
	} `json:"current"`
	CurrentUnits map[string]string `json:"current_units"`
	Daily        struct {
		Time              []string   `json:"time"`
		TempMax           []*float64 `json:"temperature_2m_max"`
		TempMin           []*float64 `json:"temperature_2m_min"`
		UVIndexMax        []*float64 `json:"uv_index_max"`
		WindSpeedMax      []*float64 `json:"wind_speed_10m_max"`
		PrecipitationProb []*float64 `json:"precipitation_probability_max"`
		WeatherCode       []*int     `json:"weather_code"`
	} `json:"daily"`
	DailyUnits map[string]string `json:"daily_units"`
}

// Forecast returns the weather for location. When date is non-empty and
// resolves against today, the daily forecast is limited to those days.
func (c *Client) Forecast(ctx context.Context, location, date string, today time.Time) (*Report, error) {
	coords := c.Geocode(ctx, location)

	var resp forecastResponse
	err := c.http.GetJSON(ctx, c.cfg.ForecastURL+"/v1/forecast", url.Values{
		"latitude":      {formatCoord(coords.Latitude)},
		"longitude":     {formatCoord(coords.Longitude)},
		"current":       {"temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code"},
		"daily":         {"temperature_2m_max,temperature_2m_min,uv_index_max,wind_speed_10m_max,precipitation_probability_max,weather_code"},
		"timezone":      {c.cfg.Location.String()},
		"forecast_days": {"14"},
	}, nil, &resp)
	if err != nil {
		return nil, errors.Wrap(err, "open-meteo forecast")
	}

	report := &Report{
		CurrentWeather: Current{
			Location:        location,
			ObservationTime: resp.Current.Time,
			Temperature:     withUnit(resp.Current.Temperature, resp.CurrentUnits["temperature_2m"]),
			Humidity:        withUnit(resp.Current.Humidity, resp.CurrentUnits["relative_humidity_2m"]),
			WindSpeed:       withUnit(resp.Current.WindSpeed, resp.CurrentUnits["wind_speed_10m"]),
			Weather:         Describe(resp.Current.WeatherCode),
		},
	}

	var window *domain.DateRange
	if strings.TrimSpace(date) != "" {
		if r, ok := domain.ResolveDateRange(date, today.In(c.cfg.Location)); ok {
			window = &r
		}
	}

	d := resp.Daily
	for i, day := range d.Time {
		if window != nil {
			t, err := time.ParseInLocation(domain.TodayLayout, day, c.cfg.Location)
			if err != nil || !window.Contains(t) {
				continue
			}
		}
		report.DailyForecast = append(report.DailyForecast, Day{
			Date:                     day,
			TempMax:                  withUnit(floatAt(d.TempMax, i), resp.DailyUnits["temperature_2m_max"]),
			TempMin:                  withUnit(floatAt(d.TempMin, i), resp.DailyUnits["temperature_2m_min"]),
			UVIndexMax:               withUnit(floatAt(d.UVIndexMax, i), ""),
			WindSpeedMax:             withUnit(floatAt(d.WindSpeedMax, i), resp.DailyUnits["wind_speed_10m_max"]),
			PrecipitationProbability: withUnit(floatAt(d.PrecipitationProb, i), resp.DailyUnits["precipitation_probability_max"]),
			Weather:                  Describe(intAt(d.WeatherCode, i)),
		})
	}

	return report, nil
}

func floatAt(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func intAt(values []*int, i int) *int {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func withUnit(v *float64, unit string) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + unit
}

func formatCoord(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
