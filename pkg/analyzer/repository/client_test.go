package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/credibility-sync/pkg/analyzer"
	"github.com/jdziat/credibility-sync/pkg/core"
)

func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(v))
	}

	mux.HandleFunc("/users/octocat/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		writeJSON(w, []map[string]any{
			{"name": "api", "fork": false, "stargazers_count": 10, "forks_count": 2, "owner": map[string]any{"login": "octocat"}},
			{"name": "forked", "fork": true, "stargazers_count": 500, "forks_count": 50},
		})
	})
	mux.HandleFunc("/repos/octocat/api/languages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]int64{"Go": 9000, "Makefile": 100})
	})
	mux.HandleFunc("/repos/octocat/api/contents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]string{
			{"name": "README.md", "type": "file"},
			{"name": "docs", "type": "dir"},
			{"name": "internal", "type": "dir"},
		})
	})
	mux.HandleFunc("/repos/octocat/api/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "octocat", r.URL.Query().Get("author"))
		writeJSON(w, []map[string]any{
			{"commit": map[string]any{"author": map[string]any{"date": "2026-05-30T10:00:00Z"}}},
			{"commit": map[string]any{"author": map[string]any{"date": "2026-05-20T10:00:00Z"}}},
		})
	})
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("q") {
		case "reviewed-by:octocat type:pr":
			w.WriteHeader(http.StatusForbidden)
			return
		case "author:octocat type:pr":
			writeJSON(w, map[string]int{"total_count": 12})
		case "author:octocat type:pr is:merged":
			writeJSON(w, map[string]int{"total_count": 9})
		default:
			writeJSON(w, map[string]int{"total_count": 3})
		}
	})
	return httptest.NewServer(mux)
}

func TestClient_FetchActivity(t *testing.T) {
	srv := newFakeAPI(t)
	defer srv.Close()

	c := NewClient(srv.URL).WithClock(fixedClock)
	act, err := c.FetchActivity(context.Background(), "octocat", "secret")
	require.NoError(t, err)

	require.Len(t, act.Repos, 2)
	api := act.Repos[0]
	assert.Equal(t, map[string]int64{"Go": 9000, "Makefile": 100}, api.Languages)
	assert.True(t, api.HasReadme)
	assert.True(t, api.HasDocs)
	assert.False(t, api.HasTests)
	assert.Nil(t, act.Repos[1].Languages, "forks are not inspected")

	assert.Len(t, act.CommitDates, 2)
	assert.Equal(t, time.Date(2026, 5, 30, 10, 0, 0, 0, time.UTC), act.CommitDates[0])
	assert.Equal(t, 12, act.PullRequests)
	assert.Equal(t, 9, act.MergedPullRequests)
	assert.Equal(t, 3, act.Issues)
	assert.Equal(t, 0, act.Reviews)
	assert.Equal(t, []string{"search: reviewed-by:octocat type:pr"}, act.Missing)
}

func TestClient_UnknownLoginIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewClient(srv.URL).FetchActivity(context.Background(), "nobody", "")
	require.Error(t, err)
	var nr *core.NoRetryError
	assert.ErrorAs(t, err, &nr)
	assert.ErrorIs(t, err, analyzer.ErrNotFound)
}
