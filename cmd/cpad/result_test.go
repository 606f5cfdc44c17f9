package main

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"

	"github.com/phatjmo/asterisk-cpa/internal/cpa"
	"github.com/phatjmo/asterisk-cpa/internal/metrics"
	"github.com/phatjmo/asterisk-cpa/internal/publisher"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func parsePayload(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return m
}

func TestNewResult(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	res := newResult("abc-123", "audiosocket", cpa.OutcomeRinging, 2480*time.Millisecond, now)

	if res.AnalysisID != "abc-123" {
		t.Errorf("analysis id = %q", res.AnalysisID)
	}
	if res.Outcome != "Ringing" {
		t.Errorf("outcome = %q", res.Outcome)
	}
	if res.Status != "Ringing" {
		t.Errorf("status = %q", res.Status)
	}
	if res.Transport != "audiosocket" {
		t.Errorf("transport = %q", res.Transport)
	}
	if res.ElapsedMS != 2480 {
		t.Errorf("elapsed = %d", res.ElapsedMS)
	}
	if res.Timestamp != "2025-06-01T12:00:00Z" {
		t.Errorf("timestamp = %q", res.Timestamp)
	}
}

func TestNewResultStatusTokens(t *testing.T) {
	cases := []struct {
		outcome cpa.Outcome
		status  string
	}{
		{cpa.OutcomeHangup, "Hungup"},
		{cpa.OutcomeSilence, "Unknown"},
		{cpa.OutcomeUnknown, "Unknown"},
		{cpa.OutcomeBusy, "Busy"},
		{cpa.OutcomeTalking, "Talking"},
	}
	for _, tc := range cases {
		res := newResult("id", "rtp", tc.outcome, 0, time.Now())
		if res.Status != tc.status {
			t.Errorf("%s: status = %q, want %q", tc.outcome, res.Status, tc.status)
		}
	}
}

func TestResultTopic(t *testing.T) {
	got := resultTopic("asterisk", "abc-123")
	if got != "asterisk/cpa/abc-123/result" {
		t.Errorf("topic = %q", got)
	}
}

func TestPublishResult(t *testing.T) {
	metrics.Init(nil)
	mock := publisher.NewMockPublisher()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	res := newResult("abc-123", "audiosocket", cpa.OutcomeBusy, 800*time.Millisecond, now)

	publishResult(context.Background(), mock, "asterisk", res, testLogger())

	msgs := mock.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Topic != "asterisk/cpa/abc-123/result" {
		t.Errorf("topic = %q", msgs[0].Topic)
	}

	payload := parsePayload(t, msgs[0].Payload)
	if payload["outcome"] != "Busy" {
		t.Errorf("outcome = %v", payload["outcome"])
	}
	if payload["status"] != "Busy" {
		t.Errorf("status = %v", payload["status"])
	}
	if payload["elapsed_ms"] != float64(800) {
		t.Errorf("elapsed_ms = %v", payload["elapsed_ms"])
	}
	if payload["timestamp"] != "2025-06-01T12:00:00Z" {
		t.Errorf("timestamp = %v", payload["timestamp"])
	}
}

func TestPublishResultSwallowsBrokerError(t *testing.T) {
	metrics.Init(nil)
	mock := publisher.NewMockPublisher()
	mock.SetError(io.ErrClosedPipe)

	res := newResult("abc-123", "rtp", cpa.OutcomeRinging, 0, time.Now())
	publishResult(context.Background(), mock, "asterisk", res, testLogger())

	if len(mock.Messages()) != 0 {
		t.Error("expected no recorded messages on publish error")
	}
}

func TestCountedPublisherCountsDeliveries(t *testing.T) {
	metrics.Init(nil)
	mock := publisher.NewMockPublisher()
	counted := countedPublisher{backend: "mqtt-count-test", inner: mock}
	counter := metrics.ResultsPublished.WithLabelValues("mqtt-count-test")

	if err := counted.Publish(context.Background(), "t", []byte("{}")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Errorf("delivered count = %v, want 1", got)
	}

	mock.SetError(io.ErrClosedPipe)
	if err := counted.Publish(context.Background(), "t", []byte("{}")); err == nil {
		t.Fatal("expected broker error to pass through")
	}
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Errorf("failed publish must not count, got %v", got)
	}
}

type stubSource struct{ polls int }

func (s *stubSource) Poll(time.Duration) (cpa.Sample, error) {
	s.polls++
	if s.polls == 1 {
		return cpa.Sample{Label: cpa.ToneBusy, Duration: 20 * time.Millisecond}, nil
	}
	return cpa.Sample{}, cpa.ErrTimeout
}

func TestObservedSourcePassesThrough(t *testing.T) {
	metrics.Init(nil)
	src := observedSource{src: &stubSource{}}

	sample, err := src.Poll(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sample.Label != cpa.ToneBusy {
		t.Errorf("label = %s", sample.Label)
	}

	if _, err := src.Poll(0); err != cpa.ErrTimeout {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestNewAnalysisIDUnique(t *testing.T) {
	if newAnalysisID() == newAnalysisID() {
		t.Error("expected distinct ids")
	}
}
