package cnpja

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New("   ", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	c, err := New("key", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}

func TestParseStrategy(t *testing.T) {
	st, err := ParseStrategy(" cache_if_fresh ")
	require.NoError(t, err)
	assert.Equal(t, StrategyCacheIfFresh, st)

	_, err = ParseStrategy("SOMETIMES")
	assert.Error(t, err)
}

func TestOfficeSendsStrategyAndCredential(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"company":{"name":"ACME LTDA"},"emails":[{"address":"a@b.com"}]}`))
	}))
	defer srv.Close()

	var observed []string
	c, err := New("secret", srv.URL+"/", WithObserver(func(s Strategy, status string) {
		observed = append(observed, string(s)+":"+status)
	}))
	require.NoError(t, err)

	doc, err := c.Office(context.Background(), "11222333000181", FetchOptions{
		Strategy:     StrategyCacheIfFresh,
		MaxAgeDays:   14,
		MaxStaleDays: 30,
	})
	require.NoError(t, err)

	assert.Equal(t, "/office/11222333000181", gotPath)
	assert.Equal(t, "secret", gotAuth)
	assert.Equal(t, "CACHE_IF_FRESH", gotQuery["strategy"][0])
	assert.Equal(t, "14", gotQuery["maxAge"][0])
	assert.Equal(t, "30", gotQuery["maxStale"][0])
	assert.Equal(t, "ACME LTDA", doc["company"].(map[string]any)["name"])
	assert.Equal(t, []string{"CACHE_IF_FRESH:200"}, observed)
}

func TestOfficeNon200IsUpstreamError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		notFound    bool
		rateLimited bool
	}{
		{"not found", http.StatusNotFound, true, false},
		{"rate limited", http.StatusTooManyRequests, false, true},
		{"bad request", http.StatusBadRequest, false, false},
		{"server error", http.StatusInternalServerError, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			c, err := New("k", srv.URL)
			require.NoError(t, err)

			_, err = c.Office(context.Background(), "11222333000181", FetchOptions{Strategy: StrategyCache})
			upErr, ok := AsUpstreamError(err)
			require.True(t, ok, "expected UpstreamError, got %v", err)
			assert.Equal(t, tt.status, upErr.StatusCode)
			assert.Equal(t, tt.notFound, upErr.IsNotFound())
			assert.Equal(t, tt.rateLimited, upErr.IsRateLimited())
			assert.Contains(t, upErr.Message, "nope")
		})
	}
}

func TestOfficeTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New("k", srv.URL)
	require.NoError(t, err)

	_, err = c.Office(context.Background(), "11222333000181", FetchOptions{Timeout: 50 * time.Millisecond})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestOfficeConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c, err := New("k", addr)
	require.NoError(t, err)

	_, err = c.Office(context.Background(), "11222333000181", FetchOptions{Timeout: time.Second})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestOfficeCancelledContextIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := New("k", srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = c.Office(ctx, "11222333000181", FetchOptions{Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTransient))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCredits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/credit", r.URL.Path)
		w.Write([]byte(`{"perpetual":10,"transient":250}`))
	}))
	defer srv.Close()

	c, err := New("k", srv.URL)
	require.NoError(t, err)

	doc, err := c.Credits(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 250, doc["transient"])
}
