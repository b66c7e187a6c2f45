// Package commercial queries a paid owner's-manual lookup API.
//
// The upstream payload is loosely typed; Lookup converts it into a
// LookupResult at the boundary so callers only see a found variant with a
// URL and title, or a not-found variant with a reason code.
package commercial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dshills/manualrag/internal/logger"
	"github.com/dshills/manualrag/pkg/types"
)

const (
	DefaultTimeout           = 10 * time.Second
	DefaultRequestsPerSecond = 2.0
	DefaultBurst             = 4
	defaultRetryAfter        = 60 * time.Second
	maxResponseBytes         = 1 << 20
)

// ReasonCode explains a not-found result
type ReasonCode string

const (
	ReasonNone        ReasonCode = ""
	ReasonNotFound    ReasonCode = "not_found"
	ReasonUnavailable ReasonCode = "unavailable"
	ReasonTimeout     ReasonCode = "timeout"
	ReasonRateLimited ReasonCode = "rate_limited"
	ReasonMalformed   ReasonCode = "malformed_response"
	ReasonDisabled    ReasonCode = "disabled"
)

// LookupResult is either {Found, URL, Title} or {!Found, Reason}
type LookupResult struct {
	Found  bool
	URL    string
	Title  string
	Reason ReasonCode
}

func notFound(reason ReasonCode) LookupResult {
	return LookupResult{Reason: reason}
}

// Lookuper is the capability acquisition depends on
type Lookuper interface {
	Lookup(ctx context.Context, v types.Vehicle) LookupResult
}

// Config configures the client
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// Client calls GET {base}/manuals with the vehicle as query parameters
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	retryAt time.Time
}

var _ Lookuper = (*Client)(nil)

// New creates a client; an empty BaseURL or APIKey yields a client whose
// lookups report ReasonDisabled.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger.OrNop(cfg.Logger),
	}
}

// Enabled reports whether the client is configured
func (c *Client) Enabled() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// upstream payload
type lookupResponse struct {
	Found  *bool `json:"found"`
	Manual *struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"manual"`
	Error string `json:"error"`
}

// Lookup never returns an error; every failure maps to a reason code
func (c *Client) Lookup(ctx context.Context, v types.Vehicle) LookupResult {
	if !c.Enabled() {
		return notFound(ReasonDisabled)
	}
	if c.backingOff() {
		return notFound(ReasonRateLimited)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return notFound(ReasonTimeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/manuals?"+vehicleQuery(v).Encode(), http.NoBody)
	if err != nil {
		return notFound(ReasonUnavailable)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		reason := ReasonUnavailable
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			reason = ReasonTimeout
		}
		c.logger.Debug("commercial_lookup_failed", slog.String("error", err.Error()))
		return notFound(reason)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return notFound(ReasonNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		c.recordRateLimit(resp.Header.Get("Retry-After"))
		return notFound(ReasonRateLimited)
	case resp.StatusCode != http.StatusOK:
		c.logger.Debug("commercial_lookup_status", slog.Int("status", resp.StatusCode))
		return notFound(ReasonUnavailable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return notFound(ReasonUnavailable)
	}
	return parseLookup(body)
}

func parseLookup(body []byte) LookupResult {
	var payload lookupResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return notFound(ReasonMalformed)
	}
	if payload.Found != nil && !*payload.Found {
		return notFound(ReasonNotFound)
	}
	if payload.Manual == nil {
		if payload.Error != "" || payload.Found == nil {
			return notFound(ReasonMalformed)
		}
		return notFound(ReasonNotFound)
	}

	u, err := url.Parse(strings.TrimSpace(payload.Manual.URL))
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return notFound(ReasonMalformed)
	}
	return LookupResult{Found: true, URL: u.String(), Title: strings.TrimSpace(payload.Manual.Title)}
}

func vehicleQuery(v types.Vehicle) url.Values {
	q := url.Values{}
	q.Set("year", strconv.Itoa(v.Year))
	q.Set("make", strings.TrimSpace(v.Make))
	q.Set("model", strings.TrimSpace(v.Model))
	if v.Trim != "" {
		q.Set("trim", strings.TrimSpace(v.Trim))
	}
	if v.VIN != "" {
		q.Set("vin", strings.ToUpper(v.VIN))
	}
	return q
}

func (c *Client) backingOff() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Before(c.retryAt)
}

func (c *Client) recordRateLimit(retryAfter string) {
	wait := defaultRetryAfter
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
		wait = time.Duration(secs) * time.Second
	}

	c.mu.Lock()
	c.retryAt = time.Now().Add(wait)
	c.mu.Unlock()

	c.logger.Warn("commercial_rate_limited", slog.Duration("retry_after", wait))
}

func (r LookupResult) String() string {
	if r.Found {
		return fmt.Sprintf("found %s", r.URL)
	}
	return fmt.Sprintf("not found (%s)", r.Reason)
}
