// Command cpad answers media streams from Asterisk, classifies the call
// progress tones it hears and reports the verdict over MQTT, AMQP and an
// AMI channel-variable write-back.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/phatjmo/asterisk-cpa/internal/ami"
	"github.com/phatjmo/asterisk-cpa/internal/audiosocket"
	"github.com/phatjmo/asterisk-cpa/internal/config"
	"github.com/phatjmo/asterisk-cpa/internal/cpa"
	"github.com/phatjmo/asterisk-cpa/internal/dsp"
	"github.com/phatjmo/asterisk-cpa/internal/metrics"
	"github.com/phatjmo/asterisk-cpa/internal/publisher"
	"github.com/phatjmo/asterisk-cpa/internal/rtpsource"
)

const (
	statusVariable = "CPASTATUS"
	handshakeWait  = 5 * time.Second
	reconnectDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "/etc/cpad/cpad.yaml", "Path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("loading config: %v", err)
	}

	log := newLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()
	}()

	registry := ami.NewRegistry(cfg.Analysis.CorrelationVariable)
	metrics.Init(func() float64 { return float64(registry.Size()) })

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, log)
	}

	pub, err := buildPublisher(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("connecting publishers")
	}
	defer pub.Close()

	session := &amiSession{}
	if cfg.AMI.Enabled() {
		go session.run(ctx, cfg, registry, log)
	}

	srv := &server{
		cfg:      cfg,
		pub:      pub,
		registry: registry,
		session:  session,
		log:      log,
	}

	var wg sync.WaitGroup
	if cfg.Listen.AudioSocket != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.serveAudioSocket(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("audiosocket listener failed")
				cancel()
			}
		}()
	}
	if cfg.Listen.RTP != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.serveRTP(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("rtp listener failed")
				cancel()
			}
		}()
	}

	wg.Wait()
	log.Info("shutdown complete")
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

func serveMetrics(addr string, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.WithField("addr", addr).Info("metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics server failed")
	}
}

func buildPublisher(cfg *config.Config, log logrus.FieldLogger) (publisher.Publisher, error) {
	var pubs []publisher.Publisher

	if cfg.MQTT.Enabled() {
		mq, err := publisher.NewMQTTPublisher(publisher.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      cfg.MQTT.QoS,
			Retained: cfg.MQTT.Retained,
		})
		if err != nil {
			return nil, err
		}
		log.WithField("broker", cfg.MQTT.Broker).Info("connected to MQTT broker")
		pubs = append(pubs, countedPublisher{backend: "mqtt", inner: mq})
	}

	if cfg.AMQP.Enabled() {
		aq, err := publisher.NewAMQPPublisher(publisher.AMQPOptions{
			URL:   cfg.AMQP.URL,
			Queue: cfg.AMQP.Queue,
		})
		if err != nil {
			return nil, err
		}
		log.WithField("queue", cfg.AMQP.Queue).Info("connected to AMQP broker")
		pubs = append(pubs, countedPublisher{backend: "amqp", inner: aq})
	}

	if len(pubs) == 0 {
		log.Warn("no publishers configured, results go to the log only")
		return publisher.NewMockPublisher(), nil
	}
	return publisher.NewMulti(pubs...), nil
}

// countedPublisher tags successful deliveries with the backend name.
type countedPublisher struct {
	backend string
	inner   publisher.Publisher
}

func (c countedPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := c.inner.Publish(ctx, topic, payload); err != nil {
		return err
	}
	metrics.ResultsPublished.WithLabelValues(c.backend).Inc()
	return nil
}

func (c countedPublisher) Close() error {
	return c.inner.Close()
}

// amiSession keeps one live AMI client across reconnects. SetVar on a
// disconnected session is a silent no-op; the verdict still reaches the
// publishers.
type amiSession struct {
	mu     sync.Mutex
	client *ami.Client
}

func (s *amiSession) run(ctx context.Context, cfg *config.Config, registry *ami.Registry, log logrus.FieldLogger) {
	for {
		err := s.runOnce(ctx, cfg, registry, log)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.WithError(err).Warnf("AMI session error, reconnecting in %s", reconnectDelay)
		}
		metrics.AMIReconnects.Inc()
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (s *amiSession) runOnce(ctx context.Context, cfg *config.Config, registry *ami.Registry, log logrus.FieldLogger) error {
	client, err := ami.Dial(ami.Options{
		Addr:     cfg.AMI.Addr(),
		Username: cfg.AMI.Username,
		Secret:   cfg.AMI.Secret,
	}, registry, log)
	if err != nil {
		return err
	}
	log.WithField("addr", cfg.AMI.Addr()).Info("AMI connected")

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	err = client.Run(ctx)

	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
	return err
}

func (s *amiSession) setVar(channel, name, value string) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return errors.New("AMI not connected")
	}
	return client.SetVar(channel, name, value)
}

type server struct {
	cfg      *config.Config
	pub      publisher.Publisher
	registry *ami.Registry
	session  *amiSession
	log      logrus.FieldLogger
}

func (s *server) serveAudioSocket(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Listen.AudioSocket)
	if err != nil {
		return err
	}
	defer listener.Close()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.log.WithField("addr", s.cfg.Listen.AudioSocket).Info("audiosocket listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		metrics.ConnectionsTotal.WithLabelValues("audiosocket").Inc()
		go s.handleAudioSocket(ctx, conn)
	}
}

func (s *server) handleAudioSocket(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	id, err := audiosocket.Handshake(conn, handshakeWait)
	if err != nil {
		s.log.WithError(err).Warn("audiosocket handshake failed")
		return
	}
	log := s.log.WithField("analysis_id", id.String())
	log.Info("stream accepted")

	det := dsp.NewDetector(s.cfg.Analysis.SilenceEnergy)
	src := audiosocket.NewSource(conn, det, log)

	outcome, elapsed := s.classify(src, log)
	res := newResult(id.String(), "audiosocket", outcome, elapsed, time.Now())
	publishResult(ctx, s.pub, s.cfg.MQTT.TopicPrefix, res, log)
	s.writeBack(id.String(), outcome, log)

	// Tell Asterisk the analysis is over so the dialplan resumes. The
	// channel may already be gone when the outcome was a hangup.
	if _, err := conn.Write(audiosocket.HangupMessage().Marshal()); err != nil {
		log.WithError(err).Debug("hangup frame not delivered")
	}
}

func (s *server) serveRTP(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.cfg.Listen.RTP)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.log.WithField("addr", s.cfg.Listen.RTP).Info("rtp listening")

	det := dsp.NewDetector(s.cfg.Analysis.SilenceEnergy)
	src := rtpsource.NewSource(conn, det, s.log)

	// One ExternalMedia stream at a time: each loop turn is one
	// classification run on whatever call is sending media.
	for ctx.Err() == nil {
		outcome, elapsed := s.classify(src, s.log)
		if ctx.Err() != nil {
			return nil
		}
		if outcome == cpa.OutcomeNoFrames {
			continue
		}
		metrics.ConnectionsTotal.WithLabelValues("rtp").Inc()
		id := newAnalysisID()
		res := newResult(id, "rtp", outcome, elapsed, time.Now())
		publishResult(ctx, s.pub, s.cfg.MQTT.TopicPrefix, res, s.log.WithField("analysis_id", id))
	}
	return nil
}

// observedSource counts samples and wait timeouts as they flow into the
// classifier.
type observedSource struct {
	src cpa.SampleSource
}

func (o observedSource) Poll(maxWait time.Duration) (cpa.Sample, error) {
	sample, err := o.src.Poll(maxWait)
	switch {
	case err == nil:
		metrics.SamplesTotal.WithLabelValues(sample.Label.String()).Inc()
	case errors.Is(err, cpa.ErrTimeout):
		metrics.FrameTimeouts.Inc()
	}
	return sample, err
}

func (s *server) classify(src cpa.SampleSource, log logrus.FieldLogger) (cpa.Outcome, time.Duration) {
	thresholds := cpa.DefaultThresholds().WithSilenceWindow(s.cfg.Analysis.SilenceWindow())
	classifier := cpa.New(thresholds,
		cpa.WithBudget(s.cfg.Analysis.Budget()),
		cpa.WithMaxFrameWait(s.cfg.Analysis.FrameWait()),
		cpa.WithLogger(log),
	)

	metrics.AnalysesActive.Inc()
	start := time.Now()
	outcome := classifier.Classify(observedSource{src: src})
	elapsed := time.Since(start)
	metrics.AnalysesActive.Dec()

	metrics.ClassificationsTotal.WithLabelValues(outcome.String()).Inc()
	metrics.AnalysisDuration.Observe(elapsed.Seconds())

	log.WithFields(logrus.Fields{
		"outcome": outcome.String(),
		"elapsed": elapsed.Round(time.Millisecond).String(),
	}).Info("classification complete")
	return outcome, elapsed
}

// writeBack sets the status variable on the originating channel, if the
// dialplan registered one for this analysis.
func (s *server) writeBack(id string, outcome cpa.Outcome, log logrus.FieldLogger) {
	channel, ok := s.registry.Lookup(id)
	if !ok {
		return
	}
	if err := s.session.setVar(channel, statusVariable, outcome.Status()); err != nil {
		metrics.AMIWritebacks.WithLabelValues("error").Inc()
		log.WithError(err).WithField("channel", channel).Warn("status write-back failed")
		return
	}
	metrics.AMIWritebacks.WithLabelValues("ok").Inc()
	log.WithField("channel", channel).Debug("status written back")
}
