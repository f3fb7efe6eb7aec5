package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal                  *prometheus.CounterVec
	IndexRunsTotal              *prometheus.CounterVec
	SkippedRowsTotal            prometheus.Counter
	PlaylistDroppedMembersTotal prometheus.Counter
	ScanDurationSeconds         prometheus.Histogram
	LibrarySongs                prometheus.Gauge
	LibraryAlbums               prometheus.Gauge
	CoverCacheRequestsTotal     *prometheus.CounterVec
}

// New registers every collector on a dedicated registry, together with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ScansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonograph_scans_total",
				Help: "Total number of library scans by result",
			},
			[]string{"result"},
		),
		IndexRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonograph_index_runs_total",
				Help: "Total number of media index passes by result",
			},
			[]string{"result"},
		),
		SkippedRowsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "phonograph_skipped_rows_total",
				Help: "Rows skipped because a required column was missing",
			},
		),
		PlaylistDroppedMembersTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "phonograph_playlist_dropped_members_total",
				Help: "Playlist members dropped because the song is no longer indexed",
			},
		),
		ScanDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "phonograph_scan_duration_seconds",
				Help:    "Duration of library scans in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		LibrarySongs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "phonograph_library_songs",
				Help: "Songs in the latest library snapshot",
			},
		),
		LibraryAlbums: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "phonograph_library_albums",
				Help: "Albums in the latest library snapshot",
			},
		),
		CoverCacheRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonograph_cover_cache_requests_total",
				Help: "Cover cache lookups by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveScan(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(result(err)).Inc()
	m.ScanDurationSeconds.Observe(d.Seconds())
}

func (m *Metrics) ObserveIndexRun(err error) {
	if m == nil {
		return
	}
	m.IndexRunsTotal.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) AddSkippedRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedRowsTotal.Add(float64(n))
}

func (m *Metrics) PlaylistMemberDropped() {
	if m == nil {
		return
	}
	m.PlaylistDroppedMembersTotal.Inc()
}

func (m *Metrics) SetLibrarySize(songs, albums int) {
	if m == nil {
		return
	}
	m.LibrarySongs.Set(float64(songs))
	m.LibraryAlbums.Set(float64(albums))
}

func (m *Metrics) CoverCacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CoverCacheRequestsTotal.WithLabelValues(outcome).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
