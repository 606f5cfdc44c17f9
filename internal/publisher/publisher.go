// Package publisher delivers classification verdicts to message brokers.
// The engine produces one result per analyzed stream; each backend gets
// the same JSON payload, routed by the result topic.
package publisher

import "context"

// Publisher delivers one encoded classification result. Topic is the
// result routing key: an MQTT topic for the broker backend, recorded as
// the message type on AMQP.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
