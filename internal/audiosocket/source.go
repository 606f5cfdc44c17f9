package audiosocket

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/phatjmo/asterisk-cpa/internal/cpa"
	"github.com/phatjmo/asterisk-cpa/internal/dsp"
)

// Source adapts one AudioSocket connection into a cpa.SampleSource. Each
// slin frame is run through the detector; silence keepalives count as
// silence for the full poll window, mirroring how non-voice frames are
// timed on a DAHDI channel.
type Source struct {
	conn net.Conn
	det  *dsp.Detector
	log  logrus.FieldLogger
}

// NewSource wraps an accepted connection. The caller keeps ownership of
// the connection and closes it after the classification run.
func NewSource(conn net.Conn, det *dsp.Detector, log logrus.FieldLogger) *Source {
	return &Source{conn: conn, det: det, log: log}
}

// Handshake reads the identification message Asterisk sends when the
// dialplan enters AudioSocket(). It must complete within wait.
func Handshake(conn net.Conn, wait time.Duration) (uuid.UUID, error) {
	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return uuid.Nil, err
	}
	msg, err := ReadMessage(conn)
	if err != nil {
		return uuid.Nil, err
	}
	return CallID(msg)
}

// Poll reads messages until one yields a sample or the wait window
// elapses.
func (s *Source) Poll(maxWait time.Duration) (cpa.Sample, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(maxWait)); err != nil {
		// A closed connection fails here before ReadMessage gets a
		// chance to.
		if errors.Is(err, net.ErrClosed) {
			return cpa.Sample{}, cpa.ErrStreamEnded
		}
		return cpa.Sample{}, err
	}

	for {
		msg, err := ReadMessage(s.conn)
		if err != nil {
			var nerr net.Error
			switch {
			case errors.As(err, &nerr) && nerr.Timeout():
				return cpa.Sample{}, cpa.ErrTimeout
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
				errors.Is(err, net.ErrClosed):
				return cpa.Sample{}, cpa.ErrStreamEnded
			default:
				return cpa.Sample{}, err
			}
		}

		switch msg.Kind {
		case KindHangup:
			return cpa.Sample{}, cpa.ErrStreamEnded
		case KindSlin:
			pcm := dsp.PCMFromLE(msg.Payload)
			return cpa.Sample{
				Label:    s.det.Analyze(pcm),
				Duration: time.Duration(len(pcm)) * time.Second / dsp.SampleRate,
			}, nil
		case KindSilence:
			return cpa.Sample{Label: cpa.ToneSilence, Duration: maxWait}, nil
		case KindError:
			s.log.WithField("payload", msg.Payload).Warn("audiosocket: error frame from asterisk")
		case KindID:
			// Duplicate id inside the stream; nothing to do.
		default:
			s.log.WithField("kind", msg.Kind).Debug("audiosocket: skipping unknown frame kind")
		}
	}
}
