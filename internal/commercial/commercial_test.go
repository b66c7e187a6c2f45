package commercial

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/manualrag/pkg/types"
)

func camry() types.Vehicle {
	return types.Vehicle{Year: 2022, Make: "Toyota", Model: "Camry", VIN: "4t1b11hk5ju123456"}
}

func newClient(t *testing.T, h http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "key", RequestsPerSecond: 100, Burst: 10}), &calls
}

func TestLookup_Found(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/manuals", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "2022", r.URL.Query().Get("year"))
		assert.Equal(t, "Camry", r.URL.Query().Get("model"))
		assert.Equal(t, "4T1B11HK5JU123456", r.URL.Query().Get("vin"))
		_, _ = w.Write([]byte(`{"found":true,"manual":{"url":"https://manuals.example.com/camry.pdf","title":" Camry 2022 "}}`))
	})

	res := c.Lookup(context.Background(), camry())
	assert.Equal(t, LookupResult{Found: true, URL: "https://manuals.example.com/camry.pdf", Title: "Camry 2022"}, res)
}

func TestParseLookup(t *testing.T) {
	tests := []struct {
		name string
		body string
		want LookupResult
	}{
		{"explicit not found", `{"found":false}`, notFound(ReasonNotFound)},
		{"manual without found flag", `{"manual":{"url":"https://x.example.com/a.pdf"}}`, LookupResult{Found: true, URL: "https://x.example.com/a.pdf"}},
		{"found without manual", `{"found":true}`, notFound(ReasonNotFound)},
		{"error payload", `{"error":"quota"}`, notFound(ReasonMalformed)},
		{"not json", `<html>oops</html>`, notFound(ReasonMalformed)},
		{"relative url", `{"found":true,"manual":{"url":"/a.pdf"}}`, notFound(ReasonMalformed)},
		{"ftp url", `{"found":true,"manual":{"url":"ftp://x.example.com/a.pdf"}}`, notFound(ReasonMalformed)},
		{"url is a number", `{"found":true,"manual":{"url":5}}`, notFound(ReasonMalformed)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLookup([]byte(tt.body)))
		})
	}
}

func TestLookup_StatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   ReasonCode
	}{
		{http.StatusNotFound, ReasonNotFound},
		{http.StatusInternalServerError, ReasonUnavailable},
		{http.StatusUnauthorized, ReasonUnavailable},
		{http.StatusTooManyRequests, ReasonRateLimited},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			res := c.Lookup(context.Background(), camry())
			assert.False(t, res.Found)
			assert.Equal(t, tt.want, res.Reason)
		})
	}
}

func TestLookup_RateLimitBacksOff(t *testing.T) {
	c, calls := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	assert.Equal(t, ReasonRateLimited, c.Lookup(context.Background(), camry()).Reason)
	assert.Equal(t, ReasonRateLimited, c.Lookup(context.Background(), camry()).Reason)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "second call must not reach the server")
}

func TestLookup_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k", Timeout: 50 * time.Millisecond})
	res := c.Lookup(context.Background(), camry())
	assert.False(t, res.Found)
	assert.Contains(t, []ReasonCode{ReasonTimeout, ReasonUnavailable}, res.Reason)
}

func TestLookup_Disabled(t *testing.T) {
	c := New(Config{})
	assert.False(t, c.Enabled())
	assert.Equal(t, notFound(ReasonDisabled), c.Lookup(context.Background(), camry()))
}

func TestLookup_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url, APIKey: "k"})
	res := c.Lookup(context.Background(), camry())
	require.False(t, res.Found)
	assert.Equal(t, ReasonUnavailable, res.Reason)
}
