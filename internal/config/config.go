package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Analysis AnalysisConfig `yaml:"analysis"`
	AMI      AMIConfig      `yaml:"ami"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

type ListenConfig struct {
	// AudioSocket is the TCP listen address for AudioSocket connections.
	AudioSocket string `yaml:"audiosocket"`
	// RTP is the UDP listen address for an ExternalMedia stream. Empty
	// disables the RTP listener.
	RTP string `yaml:"rtp"`
}

// AnalysisConfig carries the tunables of one classification run. All
// durations are milliseconds, matching the dialplan-facing units of the
// original CPA application.
type AnalysisConfig struct {
	SilenceThreshold  int     `yaml:"silence_threshold"`
	TotalAnalysisTime int     `yaml:"total_analysis_time"`
	MaxFrameWait      int     `yaml:"max_frame_wait"`
	SilenceEnergy     float64 `yaml:"silence_energy"`
	// CorrelationVariable is the channel variable the dialplan sets to
	// the AudioSocket UUID so results can be written back over AMI.
	CorrelationVariable string `yaml:"correlation_variable"`
}

func (a *AnalysisConfig) SilenceWindow() time.Duration {
	return time.Duration(a.SilenceThreshold) * time.Millisecond
}

func (a *AnalysisConfig) Budget() time.Duration {
	return time.Duration(a.TotalAnalysisTime) * time.Millisecond
}

func (a *AnalysisConfig) FrameWait() time.Duration {
	return time.Duration(a.MaxFrameWait) * time.Millisecond
}

type AMIConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Secret   string `yaml:"secret"`
}

// Enabled reports whether result write-back over AMI is configured.
func (c *AMIConfig) Enabled() bool {
	return c.Host != ""
}

func (c *AMIConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         byte   `yaml:"qos"`
	Retained    bool   `yaml:"retained"`
}

func (c *MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

type AMQPConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

func (c *AMQPConfig) Enabled() bool {
	return c.URL != ""
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Defaults returns the stock configuration: AudioSocket on 8090, RTP
// disabled, 250ms silence window, 5s analysis budget, 50ms frame wait.
func Defaults() *Config {
	return &Config{
		Listen: ListenConfig{
			AudioSocket: ":8090",
		},
		Analysis: AnalysisConfig{
			SilenceThreshold:    250,
			TotalAnalysisTime:   5000,
			MaxFrameWait:        50,
			SilenceEnergy:       256,
			CorrelationVariable: "CPAUUID",
		},
		AMI: AMIConfig{
			Port: 5038,
		},
		MQTT: MQTTConfig{
			ClientID:    "asterisk-cpa",
			TopicPrefix: "asterisk",
			QoS:         1,
		},
		Metrics: MetricsConfig{
			Addr: ":2112",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (c *Config) validate() error {
	if c.Listen.AudioSocket == "" && c.Listen.RTP == "" {
		return fmt.Errorf("listen: at least one of audiosocket and rtp is required")
	}
	if c.Analysis.SilenceThreshold < 1 {
		return fmt.Errorf("analysis.silence_threshold must be positive, got %d", c.Analysis.SilenceThreshold)
	}
	if c.Analysis.TotalAnalysisTime < 1 {
		return fmt.Errorf("analysis.total_analysis_time must be positive, got %d", c.Analysis.TotalAnalysisTime)
	}
	if c.Analysis.MaxFrameWait < 1 {
		return fmt.Errorf("analysis.max_frame_wait must be positive, got %d", c.Analysis.MaxFrameWait)
	}
	if c.Analysis.CorrelationVariable == "" {
		return fmt.Errorf("analysis.correlation_variable is required")
	}
	if c.AMI.Enabled() {
		if c.AMI.Port < 1 || c.AMI.Port > 65535 {
			return fmt.Errorf("ami.port must be between 1 and 65535, got %d", c.AMI.Port)
		}
		if c.AMI.Username == "" {
			return fmt.Errorf("ami.username is required when ami.host is set")
		}
		if c.AMI.Secret == "" {
			return fmt.Errorf("ami.secret is required when ami.host is set")
		}
	}
	if c.MQTT.Enabled() {
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id is required when mqtt.broker is set")
		}
		if c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt.topic_prefix is required when mqtt.broker is set")
		}
	}
	if c.AMQP.Enabled() && c.AMQP.Queue == "" {
		return fmt.Errorf("amqp.queue is required when amqp.url is set")
	}
	return nil
}
