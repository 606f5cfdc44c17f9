// Package rtpsource adapts an ExternalMedia-style RTP stream into a tone
// sample source. Asterisk is pointed at the daemon with a unidirectional
// ExternalMedia channel carrying G.711.
package rtpsource

import (
	"errors"
	"net"
	"time"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
	"github.com/zaf/g711"

	"github.com/phatjmo/asterisk-cpa/internal/cpa"
	"github.com/phatjmo/asterisk-cpa/internal/dsp"
)

// RTP payload types the source understands.
const (
	payloadPCMU = 0
	payloadPCMA = 8
	payloadCN   = 13
)

// Source reads RTP off a UDP socket and yields one classified sample per
// audio packet. Duplicate sequence numbers are dropped; payload types the
// source does not understand are skipped inside the wait window.
type Source struct {
	conn net.PacketConn
	det  *dsp.Detector
	log  logrus.FieldLogger

	buf      [2048]byte
	lastSeq  uint16
	gotFirst bool
}

// NewSource wraps a bound packet socket. The caller closes the socket to
// end the stream, which the classifier reports as a hangup.
func NewSource(conn net.PacketConn, det *dsp.Detector, log logrus.FieldLogger) *Source {
	return &Source{conn: conn, det: det, log: log}
}

// Poll reads packets until one yields a sample or the wait window elapses.
func (s *Source) Poll(maxWait time.Duration) (cpa.Sample, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(maxWait)); err != nil {
		// A closed socket fails here before ReadFrom gets a chance to.
		if errors.Is(err, net.ErrClosed) {
			return cpa.Sample{}, cpa.ErrStreamEnded
		}
		return cpa.Sample{}, err
	}

	for {
		n, _, err := s.conn.ReadFrom(s.buf[:])
		if err != nil {
			var nerr net.Error
			switch {
			case errors.As(err, &nerr) && nerr.Timeout():
				return cpa.Sample{}, cpa.ErrTimeout
			case errors.Is(err, net.ErrClosed):
				return cpa.Sample{}, cpa.ErrStreamEnded
			default:
				return cpa.Sample{}, err
			}
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(s.buf[:n]); err != nil {
			s.log.WithError(err).Debug("rtpsource: dropping malformed packet")
			continue
		}

		if s.gotFirst && pkt.SequenceNumber == s.lastSeq {
			continue
		}
		s.lastSeq = pkt.SequenceNumber
		s.gotFirst = true

		switch pkt.PayloadType {
		case payloadPCMU:
			return s.sampleFromPCM(g711.DecodeUlaw(pkt.Payload)), nil
		case payloadPCMA:
			return s.sampleFromPCM(g711.DecodeAlaw(pkt.Payload)), nil
		case payloadCN:
			// Comfort noise stands in for a quiet channel and is timed as
			// the whole poll window, like any other non-voice frame.
			return cpa.Sample{Label: cpa.ToneSilence, Duration: maxWait}, nil
		default:
			s.log.WithField("payload_type", pkt.PayloadType).Debug("rtpsource: skipping payload type")
		}
	}
}

func (s *Source) sampleFromPCM(lpcm []byte) cpa.Sample {
	pcm := dsp.PCMFromLE(lpcm)
	return cpa.Sample{
		Label:    s.det.Analyze(pcm),
		Duration: time.Duration(len(pcm)) * time.Second / dsp.SampleRate,
	}
}
