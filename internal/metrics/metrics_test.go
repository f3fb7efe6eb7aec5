package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveScan(t *testing.T) {
	m := New()
	m.ObserveScan(50*time.Millisecond, nil)
	m.ObserveScan(time.Second, errors.New("boom"))
	m.ObserveScan(time.Second, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ScanDurationSeconds))
}

func TestCountersAndGauges(t *testing.T) {
	m := New()
	m.AddSkippedRows(3)
	m.AddSkippedRows(0)
	m.PlaylistMemberDropped()
	m.SetLibrarySize(120, 9)
	m.CoverCacheLookup(true)
	m.CoverCacheLookup(false)
	m.CoverCacheLookup(false)
	m.ObserveIndexRun(nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.SkippedRowsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlaylistDroppedMembersTotal))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.LibrarySongs))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.LibraryAlbums))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CoverCacheRequestsTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexRunsTotal.WithLabelValues("success")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveScan(time.Second, nil)
		m.ObserveIndexRun(nil)
		m.AddSkippedRows(1)
		m.PlaylistMemberDropped()
		m.SetLibrarySize(1, 1)
		m.CoverCacheLookup(true)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetLibrarySize(5, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "phonograph_library_songs 5")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
