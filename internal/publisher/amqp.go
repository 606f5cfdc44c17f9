package publisher

import (
	"context"
	"fmt"

	"github.com/streadway/amqp"
)

// AMQPPublisher delivers results to a durable queue on the default
// exchange. The topic passed to Publish is recorded as the message type;
// routing always targets the configured queue.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// AMQPOptions configures the AMQP publisher.
type AMQPOptions struct {
	URL   string
	Queue string
}

// NewAMQPPublisher connects, opens a channel and declares the queue.
func NewAMQPPublisher(opts AMQPOptions) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to AMQP broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening AMQP channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		opts.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring AMQP queue %s: %w", opts.Queue, err)
	}

	return &AMQPPublisher{conn: conn, channel: channel, queue: opts.Queue}, nil
}

func (p *AMQPPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	err := p.channel.Publish(
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Type:        topic,
			Body:        payload,
		},
	)
	if err != nil {
		return fmt.Errorf("publishing to AMQP queue %s: %w", p.queue, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.channel.Close()
	return p.conn.Close()
}
