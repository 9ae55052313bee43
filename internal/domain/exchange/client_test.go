package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelops/internal/core/apperror"
	"fuelops/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(DefaultClientConfig(srv.URL), logger.Nop())
}

func TestClientRatesLatest(t *testing.T) {
	var gotPath, gotBase string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBase = r.URL.Query().Get("base")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"base": "USD",
			"timestamp": 1767225600,
			"rates": {"EUR": "0.92", "GBP": "0.79", "XXX": "not-a-number"}
		}`))
	})

	table, err := c.Rates(context.Background(), "USD", Latest)
	require.NoError(t, err)
	assert.Equal(t, "/latest", gotPath)
	assert.Equal(t, "USD", gotBase)
	assert.Equal(t, "USD", table.Base)

	eur, ok := table.Rate("EUR")
	require.True(t, ok)
	assert.Equal(t, "0.92", eur.String())

	// Unparseable entries are skipped, not fatal.
	_, ok = table.Rate("XXX")
	assert.False(t, ok)
}

func TestClientRatesHistoricalPath(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"success": true, "base": "EUR", "timestamp": 0, "rates": {}}`))
	})

	asOf := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	_, err := c.Rates(context.Background(), "EUR", asOf)
	require.NoError(t, err)
	assert.Equal(t, "/2026-03-10", gotPath)
}

func TestClientRatesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "error": {"code": 104, "info": "quota exceeded"}}`))
	})

	_, err := c.Rates(context.Background(), "USD", Latest)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeExchangeRate, appErr.Code)
}

func TestClientRatesHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Rates(context.Background(), "USD", Latest)
	require.Error(t, err)
	_, ok := apperror.AsAppError(err)
	assert.True(t, ok)
}

func TestClientSendsAPIKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("access_key")
		_, _ = w.Write([]byte(`{"success": true, "base": "USD", "timestamp": 0, "rates": {}}`))
	}))
	defer srv.Close()

	cfg := DefaultClientConfig(srv.URL)
	cfg.APIKey = "secret"
	c := NewClient(cfg, logger.Nop())

	_, err := c.Rates(context.Background(), "USD", Latest)
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
}
