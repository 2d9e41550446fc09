package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlefevre/steamharvest/internal/harvest"
)

type route struct {
	status int
	body   string
}

// newStoreServer serves the three resource paths for app id 42.
func newStoreServer(t *testing.T, details, reviews, store route) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	serve := func(r route) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(r.status)
			_, _ = w.Write([]byte(r.body))
		}
	}
	mux.HandleFunc("/api/appdetails", serve(details))
	mux.HandleFunc("/appreviews/42", serve(reviews))
	mux.HandleFunc("/app/42/", serve(store))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(baseURL string) *Client {
	return New(Config{
		BaseURL:       baseURL,
		UserAgent:     "test-agent",
		Timeout:       2 * time.Second,
		RetryAttempts: 2,
		RetryBackoff:  time.Millisecond,
	}, zap.NewNop())
}

func TestClient_FetchSuccess(t *testing.T) {
	t.Parallel()

	srv := newStoreServer(t,
		route{http.StatusOK, `{"42":{"success":true}}`},
		route{http.StatusOK, `{"query_summary":{}}`},
		route{http.StatusOK, `<html>store page</html>`},
	)
	c := newTestClient(srv.URL)

	bundle, err := c.Fetch(context.Background(), 42)

	require.NoError(t, err)
	require.Equal(t, harvest.Identifier(42), bundle.AppID)
	require.Contains(t, string(bundle.Details), "success")
	require.Contains(t, string(bundle.Reviews), "query_summary")
	require.Contains(t, string(bundle.StorePage), "store page")
	require.Equal(t, harvest.OutcomeSuccess, harvest.Classify(err))
}

func TestClient_SendsUserAgentAndAgeGateCookies(t *testing.T) {
	t.Parallel()

	var sawUA atomic.Value
	var sawBirthtime atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		sawUA.Store(r.Header.Get("User-Agent"))
		if c, err := r.Cookie("birthtime"); err == nil && c.Value != "" {
			sawBirthtime.Store(true)
		}
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := newTestClient(srv.URL)
	_, err := c.Fetch(context.Background(), 42)

	require.NoError(t, err)
	require.Equal(t, "test-agent", sawUA.Load())
	require.True(t, sawBirthtime.Load())
}

func TestClient_403IsHardBlocked(t *testing.T) {
	t.Parallel()

	srv := newStoreServer(t,
		route{http.StatusForbidden, ""},
		route{http.StatusOK, "{}"},
		route{http.StatusOK, "<html></html>"},
	)
	c := newTestClient(srv.URL)

	_, err := c.Fetch(context.Background(), 42)

	require.ErrorIs(t, err, harvest.ErrHardBlocked)
	require.Equal(t, harvest.OutcomeHardBlocked, harvest.Classify(err))
}

func TestClient_CaptchaPageIsHardBlocked(t *testing.T) {
	t.Parallel()

	srv := newStoreServer(t,
		route{http.StatusOK, "{}"},
		route{http.StatusOK, "{}"},
		route{http.StatusOK, `<div class="g-recaptcha"></div>`},
	)
	c := newTestClient(srv.URL)

	_, err := c.Fetch(context.Background(), 42)

	require.ErrorIs(t, err, harvest.ErrHardBlocked)
}

func TestClient_CaptchaMarkerOnlyCheckedOnStorePage(t *testing.T) {
	t.Parallel()

	// API payloads may legitimately mention the marker; only the page
	// body is a block signal.
	srv := newStoreServer(t,
		route{http.StatusOK, `{"note":"g-recaptcha"}`},
		route{http.StatusOK, "{}"},
		route{http.StatusOK, "<html>fine</html>"},
	)
	c := newTestClient(srv.URL)

	_, err := c.Fetch(context.Background(), 42)
	require.NoError(t, err)
}

func TestClient_RetriesOn429ThenSucceeds(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/appdetails") && hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := newTestClient(srv.URL)
	_, err := c.Fetch(context.Background(), 42)

	require.NoError(t, err)
	require.GreaterOrEqual(t, hits.Load(), int32(2))
}

func TestClient_Persistent429IsRateLimited(t *testing.T) {
	t.Parallel()

	srv := newStoreServer(t,
		route{http.StatusTooManyRequests, ""},
		route{http.StatusOK, "{}"},
		route{http.StatusOK, "<html></html>"},
	)
	c := newTestClient(srv.URL)

	_, err := c.Fetch(context.Background(), 42)

	require.ErrorIs(t, err, harvest.ErrRateLimited)
	require.Equal(t, harvest.OutcomeRateLimited, harvest.Classify(err))
}

func TestClient_HardBlockOutranksRateLimit(t *testing.T) {
	t.Parallel()

	srv := newStoreServer(t,
		route{http.StatusTooManyRequests, ""},
		route{http.StatusForbidden, ""},
		route{http.StatusOK, "<html></html>"},
	)
	c := newTestClient(srv.URL)

	_, err := c.Fetch(context.Background(), 42)

	require.ErrorIs(t, err, harvest.ErrHardBlocked)
}

func TestClient_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := newStoreServer(t,
		route{http.StatusInternalServerError, ""},
		route{http.StatusOK, "{}"},
		route{http.StatusOK, "<html></html>"},
	)
	c := newTestClient(srv.URL)

	_, err := c.Fetch(context.Background(), 42)

	require.Error(t, err)
	require.Equal(t, harvest.OutcomeTransientFailure, harvest.Classify(err))
}

func TestClient_ConnectionFailureIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // refuse all connections

	c := newTestClient(srv.URL)
	_, err := c.Fetch(context.Background(), 42)

	require.Error(t, err)
	require.Equal(t, harvest.OutcomeTransientFailure, harvest.Classify(err))
}
