package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAccess(t *testing.T) {
	var got EndpointHit
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/hit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	log := zerolog.Nop()
	c := NewClient(srv.URL, "afisha", &log)

	ts := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	c.RecordAccess(context.Background(), "/events/10", "192.0.2.1", ts)

	assert.Equal(t, "afisha", got.App)
	assert.Equal(t, "/events/10", got.URI)
	assert.Equal(t, "192.0.2.1", got.IP)
	assert.Equal(t, "2025-06-01 12:30:00", got.Timestamp)
}

func TestQueryCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stats", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("unique"))
		assert.Equal(t, []string{"/events/10"}, q["uris"])
		assert.NotEmpty(t, q.Get("start"))
		assert.NotEmpty(t, q.Get("end"))

		_ = json.NewEncoder(w).Encode([]ViewStats{
			{App: "afisha", URI: "/events/10", Hits: 42},
		})
	}))
	defer srv.Close()

	log := zerolog.Nop()
	c := NewClient(srv.URL, "afisha", &log)

	out, err := c.QueryCounts(context.Background(),
		time.Now().Add(-time.Hour), time.Now(), []string{"/events/10"}, true)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(42), out[0].Hits)
}

func TestEventViews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]ViewStats{
			{App: "afisha", URI: "/events/10", Hits: 7},
			{App: "afisha", URI: "/events/11", Hits: 99},
		})
	}))
	defer srv.Close()

	log := zerolog.Nop()
	c := NewClient(srv.URL, "afisha", &log)
	assert.Equal(t, int64(7), c.EventViews(context.Background(), 10))
}

func TestEventViewsCollectorDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	log := zerolog.Nop()
	c := NewClient(srv.URL, "afisha", &log)
	assert.Equal(t, int64(0), c.EventViews(context.Background(), 10))
}
