// Package audiosocket implements the Asterisk AudioSocket wire protocol
// and adapts one accepted connection into a tone sample source.
//
// Every message is a one-byte kind, a big-endian uint16 payload length and
// the payload. Asterisk sends the call's UUID first, then 20ms frames of
// 8kHz 16-bit mono signed linear audio, and a bare hangup message when the
// channel goes away.
package audiosocket

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const (
	KindHangup  byte = 0x00
	KindID      byte = 0x01
	KindSilence byte = 0x02
	KindSlin    byte = 0x10
	KindError   byte = 0xff
)

// Message is one AudioSocket frame.
type Message struct {
	Kind    byte
	Payload []byte
}

// ReadMessage reads one message off the stream. Deadlines on the
// underlying connection surface here as the usual net timeout errors.
func ReadMessage(r io.Reader) (Message, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint16(hdr[1:3])
	msg := Message{Kind: hdr[0]}
	if length > 0 {
		msg.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, msg.Payload); err != nil {
			return Message{}, err
		}
	}
	return msg, nil
}

// Marshal encodes the message in wire format.
func (m Message) Marshal() []byte {
	out := make([]byte, 3+len(m.Payload))
	out[0] = m.Kind
	binary.BigEndian.PutUint16(out[1:3], uint16(len(m.Payload)))
	copy(out[3:], m.Payload)
	return out
}

// IDMessage builds the call identification message Asterisk sends first.
func IDMessage(id uuid.UUID) Message {
	return Message{Kind: KindID, Payload: id[:]}
}

// SlinMessage builds an audio frame message from raw signed linear bytes.
func SlinMessage(pcm []byte) Message {
	return Message{Kind: KindSlin, Payload: pcm}
}

// HangupMessage builds the stream termination message.
func HangupMessage() Message {
	return Message{Kind: KindHangup}
}

// CallID extracts the UUID from an identification message.
func CallID(m Message) (uuid.UUID, error) {
	if m.Kind != KindID {
		return uuid.Nil, fmt.Errorf("audiosocket: expected id message, got kind 0x%02x", m.Kind)
	}
	id, err := uuid.FromBytes(m.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("audiosocket: bad call id payload: %w", err)
	}
	return id, nil
}
