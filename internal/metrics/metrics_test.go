package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInitAndScrape(t *testing.T) {
	Init(func() float64 { return 3 })

	ClassificationsTotal.WithLabelValues("Ringing").Inc()
	SamplesTotal.WithLabelValues("busy").Add(4)
	AnalysesActive.Set(1)
	FrameTimeouts.Inc()
	ResultsPublished.WithLabelValues("mqtt").Inc()
	AMIWritebacks.WithLabelValues("ok").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`cpa_classifications_total{outcome="Ringing"} 1`,
		`cpa_samples_total{label="busy"} 4`,
		`cpa_analyses_active 1`,
		`cpa_frame_timeouts_total 1`,
		`cpa_results_published_total{backend="mqtt"} 1`,
		`cpa_ami_writebacks_total{result="ok"} 1`,
		`cpa_ami_channels_tracked 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init(nil)
	Init(nil) // must not panic on duplicate registration
}
