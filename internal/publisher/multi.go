package publisher

import (
	"context"
	"errors"
)

// Multi fans one publish out to several publishers. Every publisher is
// attempted; the joined errors are returned so one dead broker does not
// starve the others.
type Multi struct {
	publishers []Publisher
}

// NewMulti creates a fan-out over the given publishers.
func NewMulti(publishers ...Publisher) *Multi {
	return &Multi{publishers: publishers}
}

// Len returns the number of wrapped publishers.
func (m *Multi) Len() int {
	return len(m.publishers)
}

func (m *Multi) Publish(ctx context.Context, topic string, payload []byte) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
