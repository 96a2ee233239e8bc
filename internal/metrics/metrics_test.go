package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAPIRequest(t *testing.T) {
	ObserveAPIRequest("lookup", 404, 10*time.Millisecond)
	ObserveAPIRequest("lookup", 0, time.Millisecond)

	families, err := Registry.Gather()
	require.NoError(t, err)

	codes := map[string]uint64{}

	for _, mf := range families {
		if mf.GetName() != "devicesync_api_request_duration_seconds" {
			continue
		}

		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "code" {
					codes[l.GetValue()] += m.GetHistogram().GetSampleCount()
				}
			}
		}
	}

	assert.Equal(t, uint64(1), codes["404"])
	assert.Equal(t, uint64(1), codes["0"])
}

func TestPush(t *testing.T) {
	var path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	RecordsProcessed.WithLabelValues("updated").Inc()

	require.NoError(t, Push(srv.URL, "run-1"))
	assert.True(t, strings.HasPrefix(path, "/metrics/job/devicesync"), path)
	assert.Contains(t, path, "run_id/run-1")
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.Error(t, Push(srv.URL, "run-1"))
}
