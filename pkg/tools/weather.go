package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// WeatherTool answers current-weather questions via the Open-Meteo public
// API: geocode the location name first, then fetch the current conditions.
type WeatherTool struct {
	GeocodeBaseURL  string
	ForecastBaseURL string
	Client          *http.Client
}

func NewWeatherTool() *WeatherTool {
	return &WeatherTool{
		GeocodeBaseURL:  "https://geocoding-api.open-meteo.com",
		ForecastBaseURL: "https://api.open-meteo.com",
		Client:          &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *WeatherTool) Name() string { return "weather" }

func (t *WeatherTool) Description() string {
	return "Returns the current weather for a named location, e.g. \"Paris\" or \"Jakarta, Indonesia\"."
}

func (t *WeatherTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{
				"type":        "string",
				"description": "City or place name",
			},
		},
		"required": []string{"location"},
	}
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		Windspeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

func (t *WeatherTool) Call(ctx context.Context, args map[string]any) (any, error) {
	location, _ := args["location"].(string)
	if location == "" {
		return nil, fmt.Errorf("missing 'location' argument")
	}

	geoURL := fmt.Sprintf("%s/v1/search?name=%s&count=1", t.GeocodeBaseURL, url.QueryEscape(location))
	var geo geocodeResponse
	if err := t.getJSON(ctx, geoURL, &geo); err != nil {
		return nil, fmt.Errorf("geocoding failed: %w", err)
	}
	if len(geo.Results) == 0 {
		return nil, fmt.Errorf("location %q not found", location)
	}
	place := geo.Results[0]

	fcURL := fmt.Sprintf("%s/v1/forecast?latitude=%f&longitude=%f&current_weather=true",
		t.ForecastBaseURL, place.Latitude, place.Longitude)
	var fc forecastResponse
	if err := t.getJSON(ctx, fcURL, &fc); err != nil {
		return nil, fmt.Errorf("forecast failed: %w", err)
	}

	return map[string]any{
		"location":      fmt.Sprintf("%s, %s", place.Name, place.Country),
		"temperature_c": fc.CurrentWeather.Temperature,
		"windspeed_kmh": fc.CurrentWeather.Windspeed,
		"weather_code":  fc.CurrentWeather.WeatherCode,
		"conditions":    describeWeatherCode(fc.CurrentWeather.WeatherCode),
	}, nil
}

func (t *WeatherTool) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

// describeWeatherCode maps WMO weather codes to a short label.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}
