package publisher

import (
	"context"
	"errors"
	"testing"
)

func TestMultiFansOut(t *testing.T) {
	a := NewMockPublisher()
	b := NewMockPublisher()
	m := NewMulti(a, b)

	if err := m.Publish(context.Background(), "t", []byte("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(a.Messages()) != 1 || len(b.Messages()) != 1 {
		t.Errorf("expected both publishers to receive the message, got %d and %d",
			len(a.Messages()), len(b.Messages()))
	}
}

func TestMultiContinuesPastFailure(t *testing.T) {
	a := NewMockPublisher()
	b := NewMockPublisher()
	brokerDown := errors.New("broker down")
	a.SetError(brokerDown)

	m := NewMulti(a, b)
	err := m.Publish(context.Background(), "t", []byte("x"))
	if !errors.Is(err, brokerDown) {
		t.Fatalf("expected broker error, got %v", err)
	}

	// The healthy publisher still got the message.
	if len(b.Messages()) != 1 {
		t.Errorf("expected 1 message on healthy publisher, got %d", len(b.Messages()))
	}
}

func TestMultiClose(t *testing.T) {
	a := NewMockPublisher()
	b := NewMockPublisher()
	m := NewMulti(a, b)

	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Closed() || !b.Closed() {
		t.Error("expected all publishers closed")
	}
}

func TestMultiEmpty(t *testing.T) {
	m := NewMulti()
	if m.Len() != 0 {
		t.Errorf("expected empty multi, got %d", m.Len())
	}
	if err := m.Publish(context.Background(), "t", nil); err != nil {
		t.Errorf("unexpected error from empty multi: %v", err)
	}
}
