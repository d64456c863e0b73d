// Package weather looks up the current temperature for a location through the
// weatherapi.com HTTP API.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/voxdesk/internal/resilience"
)

// Unavailable is the temperature reported when the lookup fails.
const Unavailable = -1

const (
	defaultBaseURL = "http://api.weatherapi.com/v1"
	defaultTimeout = 10 * time.Second
)

// Outcome labels passed to the observer hook.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeCircuitOpen = "circuit_open"
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Primarily used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBreaker wraps every request in cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithLogger sets the logger for failed lookups.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithObserver registers a hook that receives the outcome of every lookup.
func WithObserver(fn func(outcome string, d time.Duration)) Option {
	return func(c *Client) { c.observe = fn }
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Client is a weatherapi.com client. It is safe for concurrent use.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	breaker *resilience.CircuitBreaker
	log     *slog.Logger
	observe func(outcome string, d time.Duration)
}

// New creates a Client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type currentResponse struct {
	Current *struct {
		TempC float64 `json:"temp_c"`
	} `json:"current"`
}

// Current returns the current temperature at location in degrees Celsius.
func (c *Client) Current(ctx context.Context, location string) (float64, error) {
	var temp float64
	call := func(ctx context.Context) error {
		t, err := c.fetch(ctx, location)
		temp = t
		return err
	}

	start := time.Now()
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}

	if c.observe != nil {
		outcome := OutcomeOK
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			outcome = OutcomeCircuitOpen
		case err != nil:
			outcome = OutcomeError
		}
		c.observe(outcome, time.Since(start))
	}
	return temp, err
}

func (c *Client) fetch(ctx context.Context, location string) (float64, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", location)
	q.Set("aqi", "no")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/current.json?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("weather: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("weather: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("weather: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cr currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return 0, fmt.Errorf("weather: decode response: %w", err)
	}
	if cr.Current == nil {
		return 0, errors.New("weather: response has no current conditions")
	}
	return cr.Current.TempC, nil
}

// Temperature returns the current temperature at location rounded to whole
// degrees Celsius, or [Unavailable] if the lookup fails for any reason.
func (c *Client) Temperature(ctx context.Context, location string) int {
	temp, err := c.Current(ctx, location)
	if err != nil {
		c.log.Warn("weather lookup failed", "location", location, "err", err)
		return Unavailable
	}
	c.log.Info("weather lookup", "location", location, "temp_c", temp)
	return int(math.Round(temp))
}
