package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/types"
)

// Weather returns current conditions and a daily forecast from Open-Meteo.
// It needs no API key.
type Weather struct {
	geocodeURL  string
	forecastURL string
	client      *Client
}

// NewWeather creates the get_weather tool.
func NewWeather(client *Client) *Weather {
	return &Weather{
		geocodeURL:  "https://geocoding-api.open-meteo.com/v1/search",
		forecastURL: "https://api.open-meteo.com/v1/forecast",
		client:      client,
	}
}

func (w *Weather) Name() string { return types.ToolGetWeather }
func (w *Weather) Description() string {
	return "Get current weather and a daily forecast (up to 16 days) for a city."
}
func (w *Weather) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"location": {"type": "string", "description": "City name, e.g. 'Kyoto' or 'Lisbon, Portugal'"},
			"days": {"type": "integer", "description": "Forecast days (default: 7, max: 16)"}
		},
		"required": ["location"]
	}`)
}

type weatherParams struct {
	Location string `json:"location"`
	Days     int    `json:"days"`
}

func (p *weatherParams) Validate() error {
	p.Location = strings.TrimSpace(p.Location)
	if p.Location == "" {
		return errors.New("location is required")
	}
	if p.Days <= 0 {
		p.Days = 7
	}
	p.Days = min(p.Days, 16)
	return nil
}

type geoPlace struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
	Timezone  string  `json:"timezone"`
}

type forecastResponse struct {
	Timezone string `json:"timezone"`
	Current  *struct {
		Temperature float64 `json:"temperature_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Time          []string  `json:"time"`
		MaxTemp       []float64 `json:"temperature_2m_max"`
		MinTemp       []float64 `json:"temperature_2m_min"`
		Precipitation []int     `json:"precipitation_probability_max"`
		WeatherCode   []int     `json:"weather_code"`
	} `json:"daily"`
}

func (w *Weather) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var params weatherParams
	if err := runtime.DecodeParams(args, &params); err != nil {
		return nil, err
	}

	place, err := w.geocode(ctx, params.Location)
	if err != nil {
		return nil, err
	}

	var fc forecastResponse
	err = w.client.GetJSON(ctx, "Open-Meteo", w.forecastURL, map[string]string{
		"latitude":      strconv.FormatFloat(place.Latitude, 'f', 4, 64),
		"longitude":     strconv.FormatFloat(place.Longitude, 'f', 4, 64),
		"current":       "temperature_2m,wind_speed_10m,weather_code",
		"daily":         "temperature_2m_max,temperature_2m_min,precipitation_probability_max,weather_code",
		"timezone":      "auto",
		"forecast_days": strconv.Itoa(params.Days),
	}, nil, &fc)
	if err != nil {
		return nil, err
	}

	result := &types.WeatherResult{
		Location:  placeLabel(place),
		Latitude:  place.Latitude,
		Longitude: place.Longitude,
		Timezone:  fc.Timezone,
	}
	if fc.Current != nil {
		result.Current = &types.CurrentWeather{
			TemperatureC: fc.Current.Temperature,
			WindKph:      fc.Current.WindSpeed,
			Condition:    weatherCondition(fc.Current.WeatherCode),
		}
	}
	d := fc.Daily
	for i, date := range d.Time {
		day := types.DailyForecast{Date: date}
		if i < len(d.MaxTemp) {
			day.MaxC = d.MaxTemp[i]
		}
		if i < len(d.MinTemp) {
			day.MinC = d.MinTemp[i]
		}
		if i < len(d.Precipitation) {
			day.PrecipitationProbability = d.Precipitation[i]
		}
		if i < len(d.WeatherCode) {
			day.Condition = weatherCondition(d.WeatherCode[i])
		}
		result.Daily = append(result.Daily, day)
	}

	return types.Succeeded(result, types.Citation{
		URL:        "https://open-meteo.com/",
		Title:      "Open-Meteo forecast for " + result.Location,
		Timestamp:  time.Now(),
		Confidence: 0.9,
	}), nil
}

// geocode resolves a place name to coordinates. Results are cached for a day.
func (w *Weather) geocode(ctx context.Context, name string) (geoPlace, error) {
	key := "geocode:" + strings.ToLower(name)
	return Cached(w.client, key, 24*time.Hour, func() (geoPlace, error) {
		var resp struct {
			Results []geoPlace `json:"results"`
		}
		err := w.client.GetJSON(ctx, "Open-Meteo geocoding", w.geocodeURL, map[string]string{
			"name":     geocodeName(name),
			"count":    "1",
			"language": "en",
			"format":   "json",
		}, nil, &resp)
		if err != nil {
			return geoPlace{}, err
		}
		if len(resp.Results) == 0 {
			return geoPlace{}, fmt.Errorf("location %q not found", name)
		}
		return resp.Results[0], nil
	})
}

// geocodeName keeps only the part before the first comma; the geocoder
// matches city names, not "City, Country".
func geocodeName(name string) string {
	city, _, _ := strings.Cut(name, ",")
	return strings.TrimSpace(city)
}

func placeLabel(p geoPlace) string {
	if p.Country == "" {
		return p.Name
	}
	return p.Name + ", " + p.Country
}

// weatherCondition maps a WMO weather code to a short description.
func weatherCondition(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	}
	return "unknown"
}
