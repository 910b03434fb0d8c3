package iluminize

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"iluminize-go-home/internal/metrics"
)

const (
	DefaultPort    = 8899
	DefaultTimeout = 3 * time.Second
)

// Dialer opens a stream connection. net.Dialer.DialContext satisfies it.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// ControllerConfig is the fixed endpoint and addressing of one appliance.
type ControllerConfig struct {
	Host    string
	Port    int
	Address Address
	Timeout time.Duration // bounds both dial and write; 0 means DefaultTimeout
}

// Option configures a Controller.
type Option func(*Controller)

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(c *Controller) {
		c.dial = d
	}
}

// WithMetrics records send outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller sends commands to a single appliance. Each command opens a new
// TCP connection, writes the doubled frame once and closes. Sends through
// one Controller are serialized so the appliance sees them in call order.
type Controller struct {
	cfg     ControllerConfig
	addr    string
	dial    Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu sync.Mutex // held for the lifetime of one send
}

// NewController creates a controller for the appliance described by cfg.
func NewController(cfg ControllerConfig, logger *slog.Logger, opts ...Option) *Controller {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c := &Controller{
		cfg:    cfg,
		addr:   addr,
		dial:   (&net.Dialer{}).DialContext,
		logger: logger.With("component", "iluminize", "appliance", addr),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Host returns the appliance host.
func (c *Controller) Host() string { return c.cfg.Host }

// Port returns the appliance port.
func (c *Controller) Port() int { return c.cfg.Port }

// Address returns the sender address frames are stamped with.
func (c *Controller) Address() Address { return c.cfg.Address }

// SetRGB sets the colour channels. A non-nil error is a *TransportError that
// has already been logged; callers may ignore it.
func (c *Controller) SetRGB(ctx context.Context, red, green, blue uint8) error {
	return c.send(ctx, "rgb", RGBFrame(c.cfg.Address, red, green, blue))
}

// SetWhite sets the white channel. Error semantics match SetRGB.
func (c *Controller) SetWhite(ctx context.Context, white uint8) error {
	return c.send(ctx, "white", WhiteFrame(c.cfg.Address, white))
}

func (c *Controller) send(ctx context.Context, command string, f Frame) error {
	payload := f.Doubled()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("sending bytes", "command", command, "payload", fmt.Sprintf("%X", payload))

	start := time.Now()
	err := c.transmit(ctx, payload)
	result := "ok"
	if err != nil {
		result = err.Kind.String()
	}
	c.metrics.ObserveSend(command, result, time.Since(start))

	if err != nil {
		if err.Kind == FailureUnreachable {
			c.logger.Error("network is unreachable", "command", command, "err", err.Err)
		} else {
			c.logger.Error("send failed", "command", command, "op", err.Op, "kind", err.Kind.String(), "err", err.Err)
		}
		return err
	}
	return nil
}

// transmit runs one connect-write-close cycle. A send cannot be cancelled
// once started, so the caller's cancellation is dropped and only the
// configured timeout bounds it.
func (c *Controller) transmit(ctx context.Context, payload []byte) *TransportError {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	conn, err := c.dial(ctx, "tcp", c.addr)
	if err != nil {
		return &TransportError{Kind: classify(err), Op: "dial", Addr: c.addr, Err: err}
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return &TransportError{Kind: classify(err), Op: "write", Addr: c.addr, Err: err}
	}
	if _, err := conn.Write(payload); err != nil {
		return &TransportError{Kind: classify(err), Op: "write", Addr: c.addr, Err: err}
	}
	return nil
}
