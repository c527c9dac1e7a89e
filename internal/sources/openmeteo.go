// Package sources holds the concrete data-source adapters the collector fans out to.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/bodypress/internal/capture"
)

const (
	defaultWeatherURL    = "https://api.open-meteo.com/v1/forecast"
	defaultAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
)

// OpenMeteo looks up weather and air quality for coordinates.
// It implements collect.EnvironmentClient.
type OpenMeteo struct {
	weatherURL string
	airURL     string
	client     *http.Client
}

// OpenMeteoOption configures an OpenMeteo client.
type OpenMeteoOption func(*OpenMeteo)

// WithWeatherURL sets the forecast endpoint.
func WithWeatherURL(u string) OpenMeteoOption {
	return func(c *OpenMeteo) { c.weatherURL = u }
}

// WithAirQualityURL sets the air quality endpoint.
func WithAirQualityURL(u string) OpenMeteoOption {
	return func(c *OpenMeteo) { c.airURL = u }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) OpenMeteoOption {
	return func(c *OpenMeteo) { c.client = hc }
}

// NewOpenMeteo creates a client for the public Open-Meteo APIs.
func NewOpenMeteo(opts ...OpenMeteoOption) *OpenMeteo {
	c := &OpenMeteo{
		weatherURL: defaultWeatherURL,
		airURL:     defaultAirQualityURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type weatherResponse struct {
	Current struct {
		Temperature *float64 `json:"temperature_2m"`
		Humidity    *float64 `json:"relative_humidity_2m"`
		UVIndex     *float64 `json:"uv_index"`
		WeatherCode *int     `json:"weather_code"`
	} `json:"current"`
}

type airQualityResponse struct {
	Current struct {
		USAQI *float64 `json:"us_aqi"`
	} `json:"current"`
}

// Lookup fetches weather and air quality concurrently. One half failing still
// yields the other; only both failing is an error.
func (c *OpenMeteo) Lookup(ctx context.Context, lat, lon float64) (*capture.EnvironmentData, error) {
	var weather weatherResponse
	var air airQualityResponse
	var weatherErr, airErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		weatherErr = c.get(gctx, c.weatherURL, lat, lon,
			"temperature_2m,relative_humidity_2m,uv_index,weather_code", &weather)
		return nil
	})
	g.Go(func() error {
		airErr = c.get(gctx, c.airURL, lat, lon, "us_aqi", &air)
		return nil
	})
	_ = g.Wait()

	if weatherErr != nil && airErr != nil {
		return nil, fmt.Errorf("environment lookup failed: weather: %v; air quality: %v", weatherErr, airErr)
	}

	env := &capture.EnvironmentData{}
	if weatherErr != nil {
		log.Debug().Err(weatherErr).Msg("weather lookup failed")
	} else {
		env.TemperatureC = weather.Current.Temperature
		env.Humidity = weather.Current.Humidity
		env.UVIndex = weather.Current.UVIndex
		if weather.Current.WeatherCode != nil {
			env.Condition = WeatherCondition(*weather.Current.WeatherCode)
		}
	}
	if airErr != nil {
		log.Debug().Err(airErr).Msg("air quality lookup failed")
	} else if air.Current.USAQI != nil {
		env.AirQualityIndex = capture.Int(int(*air.Current.USAQI + 0.5))
	}
	return env, nil
}

func (c *OpenMeteo) get(ctx context.Context, endpoint string, lat, lon float64, current string, dst any) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", current)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("open-meteo error (%d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// WeatherCondition maps a WMO weather code to a short description.
func WeatherCondition(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return "rain"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "snow"
	case code >= 95:
		return "thunderstorm"
	}
	return "unknown"
}
