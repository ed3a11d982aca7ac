package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerProbesAndMetrics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gotOpts int
	echo := func(opts ...connect.HandlerOption) (string, http.Handler) {
		gotOpts = len(opts)
		return "/echo/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("echo"))
		})
	}

	s, err := New(ctx, "127.0.0.1:0", promclient.NewRegistry(), echo)
	require.NoError(t, err)
	assert.Equal(t, 1, gotOpts)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	code, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"HEALTHY"}`, body)

	code, body = get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"SERVING"}`, body)

	code, body = get(t, srv.URL+"/echo/x")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "echo", body)

	code, _ = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)

	cancel()
	code, body = get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.JSONEq(t, `{"status":"NOT_SERVING"}`, body)
}

func TestShutdownWithoutServe(t *testing.T) {
	t.Parallel()

	s, err := New(context.Background(), "127.0.0.1:0", promclient.NewRegistry())
	require.NoError(t, err)
	assert.NoError(t, s.Shutdown(context.Background()))
}
