package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveScan(t *testing.T) {
	scansBefore := testutil.ToFloat64(Scans.WithLabelValues("recursive"))
	errorsBefore := testutil.ToFloat64(ScanErrors)

	ObserveScan(true, time.Now(), nil)
	ObserveScan(true, time.Now(), errors.New("gone"))

	assert.Equal(t, scansBefore+2, testutil.ToFloat64(Scans.WithLabelValues("recursive")))
	assert.Equal(t, errorsBefore+1, testutil.ToFloat64(ScanErrors))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	Events.WithLabelValues("added").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "treewatch_monitor_events_total"))
}
