package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	before := testutil.ToFloat64(DecodeFailures.WithLabelValues("heart_rate"))
	DecodeFailures.WithLabelValues("heart_rate").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(DecodeFailures.WithLabelValues("heart_rate")))

	HeartRate.Set(72)
	assert.Equal(t, 72.0, testutil.ToFloat64(HeartRate))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ConnectResults.WithLabelValues("connected").Inc()

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fitlink_connect_results_total{result="connected"}`)
	assert.Contains(t, string(body), "fitlink_heart_rate_bpm")
}
