package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/weather-bot-go/internal/config"
	"github.com/user/weather-bot-go/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	currentPath  = "/weather"
	forecastPath = "/forecast"

	// 3-hour slots: 8 cover today, 40 is the API maximum (5 days)
	todaySlots    = 8
	forecastSlots = 40
)

// Client fetches weather data from the OpenWeather 2.5 API
type Client struct {
	client  *http.Client
	limiter *rate.Limiter
	config  *config.WeatherConfig
	backoff time.Duration
}

var (
	_ ContentProvider  = (*Client)(nil)
	_ ForecastProvider = (*Client)(nil)
)

// NewClient creates a new OpenWeather client
func NewClient(cfg *config.WeatherConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		config:  cfg,
		backoff: time.Second,
	}
}

// Fetch returns current conditions for location plus today's temperature outline.
// The outline is best effort: if the forecast call fails the summary is still returned.
func (c *Client) Fetch(ctx context.Context, location string) (string, error) {
	var cur currentResponse
	if err := c.get(ctx, currentPath, location, 0, &cur); err != nil {
		return "", err
	}
	if len(cur.Weather) == 0 {
		return "", fmt.Errorf("weather response for %q has no conditions", location)
	}

	var today *forecastResponse
	var fc forecastResponse
	if err := c.get(ctx, forecastPath, location, todaySlots, &fc); err != nil {
		log.Debug().Err(err).Str("location", location).Msg("Today's forecast unavailable")
	} else {
		today = &fc
	}

	return formatCurrent(&cur, today, unitsFor(c.config.Units)), nil
}

// FetchForecast returns a day-by-day summary for the next five days
func (c *Client) FetchForecast(ctx context.Context, location string) (string, error) {
	var fc forecastResponse
	if err := c.get(ctx, forecastPath, location, forecastSlots, &fc); err != nil {
		return "", err
	}
	return formatForecast(&fc, unitsFor(c.config.Units)), nil
}

// get performs a GET with retries and decodes the JSON body into out
func (c *Client) get(ctx context.Context, path, location string, slots int, out interface{}) error {
	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", c.config.APIKey)
	q.Set("units", c.config.Units)
	q.Set("lang", c.config.Lang)
	if slots > 0 {
		q.Set("cnt", fmt.Sprint(slots))
	}
	target := strings.TrimRight(c.config.BaseURL, "/") + path + "?" + q.Encode()

	body, err := c.fetchWithRetry(ctx, target)
	if err != nil {
		if !errors.Is(err, ErrCityNotFound) {
			metrics.RecordError("weather_fetch")
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		metrics.RecordError("weather_decode")
		return fmt.Errorf("failed to decode weather response: %w", err)
	}
	return nil
}

// permanentError marks a response that retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// fetchWithRetry fetches a URL with rate limiting and exponential backoff
func (c *Client) fetchWithRetry(ctx context.Context, target string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		body, err := c.fetch(ctx, target)
		if err == nil {
			return body, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return nil, perm.err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		log.Debug().Err(err).Int("attempt", attempt+1).Msg("Weather request failed")

		if attempt < c.config.MaxRetries {
			// Exponential backoff: 1x, 2x, 4x
			backoff := time.Duration(math.Pow(2, float64(attempt))) * c.backoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// fetch performs a single HTTP request
func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &permanentError{fmt.Errorf("create request error: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body error: %w", err)
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Str("path", req.URL.Path).
		Int("length", len(body)).
		Msg("Weather response")

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &permanentError{ErrCityNotFound}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	default:
		return nil, &permanentError{fmt.Errorf("HTTP status %d: %s", resp.StatusCode, apiMessage(body))}
	}
}

// apiMessage extracts the "message" field of an OpenWeather error body
func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return "unexpected response"
}
