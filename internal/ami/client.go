package ami

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures a manager interface connection.
type Options struct {
	Addr     string
	Username string
	Secret   string
	// DialTimeout bounds the TCP connect; zero means 10 seconds.
	DialTimeout time.Duration
}

// Client is a minimal AMI client: it logs in, feeds every event to the
// registry, and writes Setvar actions. Reads happen on the Run goroutine
// only; writes are serialized by a mutex so any classification goroutine
// may call SetVar.
type Client struct {
	conn     net.Conn
	parser   *Parser
	registry *Registry
	log      logrus.FieldLogger

	writeMu sync.Mutex
}

// Dial connects and authenticates against the manager interface.
func Dial(opts Options, registry *Registry, log logrus.FieldLogger) (*Client, error) {
	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	conn, err := net.DialTimeout("tcp", opts.Addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial AMI: %w", err)
	}

	c := &Client{
		conn:     conn,
		registry: registry,
		log:      log,
	}

	reader := bufio.NewReader(conn)
	banner, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading AMI banner: %w", err)
	}
	c.log.WithField("banner", strings.TrimSpace(banner)).Debug("ami: connected")

	if err := c.write(marshalAction("Login",
		"Username", opts.Username,
		"Secret", opts.Secret,
		"Events", "call")); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending login: %w", err)
	}

	c.parser = NewParser(reader)
	resp, err := c.awaitResponse()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading login response: %w", err)
	}
	if !resp.Success() {
		conn.Close()
		return nil, fmt.Errorf("AMI login rejected: %s", resp.Get("Message"))
	}

	return c, nil
}

// Run consumes events until the context is cancelled or the connection
// drops, feeding the correlation registry.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		evt, err := c.parser.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("AMI connection closed: %w", err)
		}
		if evt.IsResponse() {
			if !evt.Success() {
				c.log.WithField("message", evt.Get("Message")).Warn("ami: action failed")
			}
			continue
		}
		c.registry.Process(evt)
	}
}

// SetVar sets a channel variable, used to hand the classification status
// back to the dialplan.
func (c *Client) SetVar(channel, name, value string) error {
	return c.write(marshalAction("Setvar",
		"Channel", channel,
		"Variable", name,
		"Value", value))
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) write(action []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(action)
	return err
}

// awaitResponse reads blocks until one is a response, skipping any
// events that raced in ahead of it.
func (c *Client) awaitResponse() (Event, error) {
	for {
		evt, err := c.parser.Next()
		if err != nil {
			return nil, err
		}
		if evt.IsResponse() {
			return evt, nil
		}
	}
}
