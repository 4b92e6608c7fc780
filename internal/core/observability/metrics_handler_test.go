package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	ObserveHTTP("GET", "/mbtiles", 200, 0.001)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "http_requests_total") {
		t.Fatalf("metrics payload did not contain expected metric names; got:\n%s", body)
	}
}

func TestObserveTile_CountsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(tilesServedTotal.WithLabelValues("tiles", OutcomeFallback))
	ObserveTile("tiles", OutcomeFallback)
	ObserveTile("tiles", OutcomeFallback)
	if got := testutil.ToFloat64(tilesServedTotal.WithLabelValues("tiles", OutcomeFallback)); got != before+2 {
		t.Fatalf("fallback count=%v want %v", got, before+2)
	}
}

func TestArchiveMetrics_TracksOpenHandles(t *testing.T) {
	var m ArchiveMetrics
	open := testutil.ToFloat64(archiveOpen)
	reused := testutil.ToFloat64(archiveEventsTotal.WithLabelValues("reused"))

	m.ArchiveOpened("a.mbtiles")
	if got := testutil.ToFloat64(archiveOpen); got != open+1 {
		t.Fatalf("open=%v want %v", got, open+1)
	}
	m.ArchiveReused("a.mbtiles")
	m.ArchiveClosed("a.mbtiles")
	if got := testutil.ToFloat64(archiveOpen); got != open {
		t.Fatalf("open=%v want %v", got, open)
	}
	if got := testutil.ToFloat64(archiveEventsTotal.WithLabelValues("reused")); got != reused+1 {
		t.Fatalf("reused=%v want %v", got, reused+1)
	}
}
