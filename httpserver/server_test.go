package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	cfg := &HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      slog.New(slog.NewTextHandler(io.Discard, nil)),
		DrainDuration:            10 * time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}

	srv := New(cfg, pingRegistrar{})
	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)

	return srv, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestServerMountsRegistrarRoutes(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := get(t, ts.URL+"/api/v1/ping")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "pong", body)
}

func TestServerHealthEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := get(t, ts.URL+"/livez")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"status":"alive"}`, body)

	code, body = get(t, ts.URL+"/readyz")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"status":"ready"}`, body)
}

func TestServerDrainFlow(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := get(t, ts.URL+"/drain")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"status":"draining"}`, body)

	code, _ = get(t, ts.URL+"/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code, "drained server must fail readiness")

	code, body = get(t, ts.URL+"/drain")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"status":"already draining"}`, body)

	code, body = get(t, ts.URL+"/undrain")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"status":"ready"}`, body)

	code, _ = get(t, ts.URL+"/readyz")
	require.Equal(t, http.StatusOK, code, "undrained server must pass readiness again")
}

func TestServerPprofDisabledByDefault(t *testing.T) {
	_, ts := newTestServer(t)

	code, _ := get(t, ts.URL+"/debug/pprof/")
	require.Equal(t, http.StatusNotFound, code)
}

type remoteAddrRegistrar struct{}

func (remoteAddrRegistrar) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/origin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.RemoteAddr))
	})
}

func TestServerTrustProxyHeaders(t *testing.T) {
	cfg := &HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      slog.New(slog.NewTextHandler(io.Discard, nil)),
		GracefulShutdownDuration: time.Second,
	}

	fetchOrigin := func(t *testing.T, srv *Server) string {
		t.Helper()

		ts := httptest.NewServer(srv.srv.Handler)
		t.Cleanup(ts.Close)

		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/origin", nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", "198.51.100.9")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	t.Run("ignored by default", func(t *testing.T) {
		origin := fetchOrigin(t, New(cfg, remoteAddrRegistrar{}))
		require.NotContains(t, origin, "198.51.100.9", "forwarding headers must not be trusted by default")
	})

	t.Run("honored when enabled", func(t *testing.T) {
		trusting := *cfg
		trusting.TrustProxyHeaders = true
		origin := fetchOrigin(t, New(&trusting, remoteAddrRegistrar{}))
		require.Equal(t, "198.51.100.9", origin)
	})
}
