package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(recoveryAttempts.WithLabelValues(OutcomeSuccess))
	RecordRecoveryAttempt(OutcomeSuccess)
	require.Equal(t, before+1, testutil.ToFloat64(recoveryAttempts.WithLabelValues(OutcomeSuccess)))

	before = testutil.ToFloat64(custodyOps.WithLabelValues("store", OutcomeDenied))
	RecordCustodyOp("store", OutcomeDenied)
	require.Equal(t, before+1, testutil.ToFloat64(custodyOps.WithLabelValues("store", OutcomeDenied)))

	before = testutil.ToFloat64(tokenOps.WithLabelValues("rotate", OutcomeFailure))
	RecordTokenOp("rotate", OutcomeFailure)
	require.Equal(t, before+1, testutil.ToFloat64(tokenOps.WithLabelValues("rotate", OutcomeFailure)))

	before = testutil.ToFloat64(ratelimitRejections.WithLabelValues("identity"))
	RecordRateLimitRejection("identity")
	require.Equal(t, before+1, testutil.ToFloat64(ratelimitRejections.WithLabelValues("identity")))
}

func TestMetricsEndpointServesCounters(t *testing.T) {
	RecordRecoveryAttempt(OutcomeFailure)
	RecordCustodyOp("retrieve", OutcomeSuccess)
	RecordRateLimitRejection("origin")

	srv := New("test-metrics", "127.0.0.1:0")
	ts := httptest.NewServer(srv.srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Contains(t, string(body), "recovery_attempts_total")
	require.Contains(t, string(body), "custody_ops_total")
	require.Contains(t, string(body), "ratelimit_rejections_total")
	require.Contains(t, string(body), `service_info{service="test-metrics"`)
}
