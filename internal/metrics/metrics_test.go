package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestRecordersMoveCollectors ensures every recorder touches its collector.
func TestRecordersMoveCollectors(t *testing.T) {
	t.Parallel()

	m := New()

	m.RecordUpdateCheck()
	m.RecordUpdateCheck()
	require.InDelta(t, 2.0, testutil.ToFloat64(m.updateChecks), 0)

	m.RecordUpdateApplied(496)
	require.InDelta(t, 1.0, testutil.ToFloat64(m.updatesApplied), 0)
	require.InDelta(t, 496.0, testutil.ToFloat64(m.installedBuild), 0)

	m.RecordUpdateFailure()
	require.InDelta(t, 1.0, testutil.ToFloat64(m.updateFailures), 0)

	m.RecordServerStart(496)
	require.InDelta(t, 1.0, testutil.ToFloat64(m.serverStarts), 0)

	m.RecordRestart()
	require.InDelta(t, 1.0, testutil.ToFloat64(m.restarts), 0)

	m.RecordDownload(1024, 2*time.Second)
	require.InDelta(t, 1024.0, testutil.ToFloat64(m.downloadBytes), 0)
}

// TestHandlerServesMetricsAndHealth ensures the diagnostics router exposes both endpoints.
func TestHandlerServesMetricsAndHealth(t *testing.T) {
	t.Parallel()

	m := New()
	m.RecordUpdateCheck()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)

	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "paperward_update_checks_total 1")
}

// TestServeStopsOnContextCancel ensures the diagnostics server shuts down with the context.
func TestServeStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	m := New()
	go func() {
		done <- m.Serve(ctx, "127.0.0.1:0")
	}()

	// Give the listener a moment to bind before asking it to stop.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("diagnostics server did not stop")
	}
}
