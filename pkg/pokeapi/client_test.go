package pokeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/retry"
)

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestList_FollowsPagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/berry/", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		offset := r.URL.Query().Get("offset")
		page := listPage{Count: 3}
		switch offset {
		case "0":
			next := fmt.Sprintf("%s/api/v2/berry/?limit=2&offset=2", srv.URL)
			page.Next = &next
			page.Results = []NamedResource{
				{Name: "cheri", URL: srv.URL + "/api/v2/berry/1/"},
				{Name: "chesto", URL: srv.URL + "/api/v2/berry/2/"},
			}
		case "2":
			page.Results = []NamedResource{{Name: "pecha", URL: srv.URL + "/api/v2/berry/3/"}}
		default:
			t.Errorf("unexpected offset %q", offset)
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL + "/api/v2", PageSize: 2, Retry: fastRetry()}, zap.NewNop())

	items, err := c.List(context.Background(), "berry")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "cheri", items[0].Name)
	assert.Equal(t, "pecha", items[2].Name)
	assert.Equal(t, int64(3), IDFromURL(items[2].URL))
}

func TestFetch_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id": 25, "name": "pikachu"}`))
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, Retry: fastRetry()}, zap.NewNop())

	body, err := c.Fetch(context.Background(), srv.URL+"/pokemon/25/")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": 25, "name": "pikachu"}`, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, Retry: fastRetry()}, zap.NewNop())

	_, err := c.Fetch(context.Background(), srv.URL+"/pokemon/99999/")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.False(t, statusErr.IsRetryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, Retry: fastRetry()}, zap.NewNop())

	_, err := c.Fetch(context.Background(), srv.URL+"/move/1/")
	require.Error(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestListURL(t *testing.T) {
	c := NewClient(&Config{BaseURL: "https://pokeapi.co/api/v2/"}, zap.NewNop())

	got, err := c.ListURL("pokemon-species")
	require.NoError(t, err)
	assert.Equal(t, "https://pokeapi.co/api/v2/pokemon-species/?limit=100&offset=0", got)
	assert.Equal(t, "https://pokeapi.co/api/v2", c.BaseURL())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1", now))
	assert.Equal(t, 10*time.Second, parseRetryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}

func TestIDFromURL(t *testing.T) {
	tests := map[string]int64{
		"https://pokeapi.co/api/v2/generation/1/":        1,
		"https://pokeapi.co/api/v2/evolution-chain/10":   10,
		"https://pokeapi.co/api/v2/pokemon-species/025/": 25,
		"https://pokeapi.co/api/v2/type/fire/":           0,
		"":                                               0,
	}
	for in, want := range tests {
		assert.Equal(t, want, IDFromURL(in), in)
	}
}
