package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/phatjmo/asterisk-cpa/internal/cpa"
	"github.com/phatjmo/asterisk-cpa/internal/metrics"
	"github.com/phatjmo/asterisk-cpa/internal/publisher"
)

// result is the JSON structure published after a classification run.
type result struct {
	AnalysisID string `json:"analysis_id"`
	Outcome    string `json:"outcome"`
	Status     string `json:"status"`
	Transport  string `json:"transport"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	Timestamp  string `json:"timestamp"`
}

func newResult(id, transport string, outcome cpa.Outcome, elapsed time.Duration, now time.Time) result {
	return result{
		AnalysisID: id,
		Outcome:    outcome.String(),
		Status:     outcome.Status(),
		Transport:  transport,
		ElapsedMS:  elapsed.Milliseconds(),
		Timestamp:  now.UTC().Format(time.RFC3339),
	}
}

func resultTopic(prefix, id string) string {
	return fmt.Sprintf("%s/cpa/%s/result", prefix, id)
}

// newAnalysisID labels runs that have no AudioSocket UUID, such as RTP
// streams.
func newAnalysisID() string {
	return uuid.New().String()
}

func publishResult(ctx context.Context, pub publisher.Publisher, prefix string, res result, log logrus.FieldLogger) {
	data, err := json.Marshal(res)
	if err != nil {
		log.WithError(err).Error("marshaling result")
		return
	}

	topic := resultTopic(prefix, res.AnalysisID)
	if err := pub.Publish(ctx, topic, data); err != nil {
		metrics.PublishErrors.Inc()
		log.WithError(err).WithField("topic", topic).Error("publishing result")
		return
	}
	log.WithFields(logrus.Fields{
		"topic":  topic,
		"status": res.Status,
	}).Info("published result")
}
