package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAnyResponseCountsAsReachable(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	denied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer denied.Close()

	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://elsewhere.invalid/", http.StatusMovedPermanently)
	}))
	defer redirect.Close()

	checker := NewChecker(nil)
	results := checker.Check(context.Background(), []string{ok.URL, denied.URL, redirect.URL})

	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Reachable, "endpoint %s should be reachable", r.Endpoint)
		assert.Empty(t, r.Error)
	}
}

func TestCheckConnectionFailureIsUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	checker := NewChecker(&CheckerOptions{Timeout: 2 * time.Second})
	results := checker.Check(context.Background(), []string{deadURL})

	require.Len(t, results, 1)
	assert.False(t, results[0].Reachable)
	assert.NotEmpty(t, results[0].Error)
}

func TestCheckPreservesInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	endpoints := []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/c", srv.URL + "/d"}
	checker := NewChecker(&CheckerOptions{Concurrency: 2})
	results := checker.Check(context.Background(), endpoints)

	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, endpoints[i], r.Endpoint)
	}
}

func TestCheckProbeTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer slow.Close()

	checker := NewChecker(&CheckerOptions{Timeout: 20 * time.Millisecond})
	results := checker.Check(context.Background(), []string{slow.URL})

	require.Len(t, results, 1)
	assert.False(t, results[0].Reachable)
	assert.Contains(t, results[0].Error, "context deadline exceeded")
}

func TestUnreachableFilter(t *testing.T) {
	results := []Result{
		{Endpoint: "https://a", Reachable: true},
		{Endpoint: "https://b", Reachable: false, Error: "connection refused"},
		{Endpoint: "https://c", Reachable: true},
	}

	failed := Unreachable(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "https://b", failed[0].Endpoint)
}

func TestDefaultEndpointsCoverArcSurface(t *testing.T) {
	assert.Contains(t, DefaultEndpoints, "https://management.azure.com")
	assert.Contains(t, DefaultEndpoints, "https://gbl.his.arc.azure.com")
	assert.Contains(t, DefaultEndpoints, "https://agentserviceapi.guestconfiguration.azure.com")
}
