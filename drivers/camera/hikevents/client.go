// Package hikevents keeps a subscription to a Hikvision camera alert stream
// open and turns the pushed EventNotificationAlert documents into a motion
// status.
//
// One Client serves one camera. Run owns all client state and must be called
// from a single goroutine; the status sink is invoked from that goroutine.
package hikevents

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const readChunkSize = 2048

// Timings controls the waits of the state machine.
type Timings struct {
	ConnectTimeout time.Duration // 0 leaves the timeout to the OS
	ReceiveWait    time.Duration
	StaleAfter     time.Duration
	RetryDelay     time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		ReceiveWait: 5000 * time.Millisecond,
		StaleAfter:  2000 * time.Millisecond,
		RetryDelay:  100 * time.Millisecond,
	}
}

// withDefaults fills zero waits from DefaultTimings.
func (t Timings) withDefaults() Timings {
	def := DefaultTimings()
	if t.ReceiveWait <= 0 {
		t.ReceiveWait = def.ReceiveWait
	}
	if t.StaleAfter <= 0 {
		t.StaleAfter = def.StaleAfter
	}
	if t.RetryDelay <= 0 {
		t.RetryDelay = def.RetryDelay
	}
	return t
}

// Config holds the connection parameters of one camera.
type Config struct {
	Name     string
	Host     string
	Port     int
	Username string
	Password string
	Timings  Timings
}

func (c Config) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type Option func(*Client)

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithLogger(logger log.FieldLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records the client's activity in m under the camera name.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = &cameraMetrics{m: m, camera: c.cfg.Name}
		}
	}
}

// WithStateObserver calls fn on every state transition, from the Run goroutine.
func WithStateObserver(fn func(from, to ConnectionState)) Option {
	return func(c *Client) { c.onState = fn }
}

// WithEventObserver calls fn with every successfully parsed event before the
// resulting status is applied.
func WithEventObserver(fn func(EventMessage)) Option {
	return func(c *Client) { c.onEvent = fn }
}

// Client is the alert stream state machine for one camera.
type Client struct {
	cfg     Config
	request []byte
	dialer  Dialer
	logger  log.FieldLogger
	log     log.FieldLogger
	metrics *cameraMetrics
	onState func(from, to ConnectionState)
	onEvent func(EventMessage)
	now     func() time.Time

	state     ConnectionState
	status    *StatusTracker
	frames    *FrameExtractor
	watchdog  *Watchdog
	pending   <-chan ConnectResult
	transport Transport
	unwatch   func() bool
	readBuf   []byte
}

func NewClient(cfg Config, sink DeviceStatusSink, opts ...Option) *Client {
	cfg.Timings = cfg.Timings.withDefaults()
	c := &Client{
		cfg:      cfg,
		request:  SubscriptionRequest(cfg.Username, cfg.Password),
		dialer:   TCPDialer{Timeout: cfg.Timings.ConnectTimeout},
		now:      time.Now,
		state:    StateStart,
		status:   NewStatusTracker(sink),
		frames:   NewFrameExtractor(),
		watchdog: NewWatchdog(cfg.Timings.StaleAfter),
		readBuf:  make([]byte, readChunkSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.WithField("camera", cfg.Name)
	}
	c.log = c.logger
	return c
}

// Run drives the state machine until ctx is cancelled, in which case it
// returns nil, or until an unexpected error ends it with a *FatalError.
// The status is forced to StatusUnknown on the way out.
func (c *Client) Run(ctx context.Context) (err error) {
	c.logger.Infof("Starting alert stream worker for %s", c.cfg.address())
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Alert stream worker crashed with error : ", string(debug.Stack()))
			err = &FatalError{Cause: errors.Errorf("panic: %v", r), State: c.state}
		}
		c.closeTransport()
		c.forceUnknown()
		c.logger.Info("Alert stream worker exited main loop")
	}()

	c.metrics.status(c.status.Current())
	c.metrics.state(c.state)
	for {
		if ctx.Err() != nil {
			return nil
		}
		stepErr := c.step(ctx)
		if stepErr == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if !isRecoverable(stepErr) {
			c.logger.Error("Unexpected error : ", stepErr)
			return &FatalError{Cause: stepErr, State: c.state}
		}
		c.log.Info("Socket exception : ", stepErr)
		c.metrics.reconnect("transport")
		c.closeTransport()
		c.setStatus(StatusUnknown, EventMessage{})
		c.setState(StateStart)
		if sleep(ctx, c.cfg.Timings.RetryDelay) != nil {
			return nil
		}
	}
}

func (c *Client) step(ctx context.Context) error {
	switch c.state {
	case StateStart:
		return c.start(ctx)
	case StateConnecting:
		return c.connecting(ctx)
	case StateSending:
		return c.sending()
	case StateReceiving:
		return c.receiving()
	case StateWaitingRetry:
		if err := sleep(ctx, c.cfg.Timings.RetryDelay); err != nil {
			return err
		}
		c.setState(StateStart)
		return nil
	default:
		return errors.Errorf("invalid connection state %d", int(c.state))
	}
}

func (c *Client) start(ctx context.Context) error {
	c.frames.Reset()
	c.log = c.logger.WithField("session", uuid.NewString())
	c.log.Debugf("Connecting to %s", c.cfg.address())
	c.pending = c.dialer.DialAsync(ctx, c.cfg.address())
	c.setState(StateConnecting)
	return nil
}

func (c *Client) connecting(ctx context.Context) error {
	pending := c.pending
	c.pending = nil
	select {
	case <-ctx.Done():
		go discardConnect(pending)
		return ctx.Err()
	case res := <-pending:
		if res.Err != nil {
			c.log.Info("Connection failed, retrying : ", withKind(ErrConnectFailure, res.Err, "connect "+c.cfg.address()))
			c.metrics.reconnect("connect")
			c.setState(StateWaitingRetry)
			return nil
		}
		c.attach(ctx, res.Transport)
		c.setState(StateSending)
		return nil
	}
}

func (c *Client) sending() error {
	c.log.Info("Connected to camera")
	if _, err := c.transport.Write(c.request); err != nil {
		return withKind(ErrTransportFailure, err, "send subscription request")
	}
	c.watchdog.MarkSeen(c.now())
	c.setState(StateReceiving)
	return nil
}

func (c *Client) receiving() error {
	if !c.extractOne() {
		n, err := c.transport.Read(c.readBuf, c.cfg.Timings.ReceiveWait)
		if n > 0 {
			c.frames.Write(c.readBuf[:n])
			c.extractOne()
		}
		if err != nil {
			return withKind(ErrTransportFailure, err, "read alert stream")
		}
	}

	now := c.now()
	if c.watchdog.IsStale(now) {
		stale := withKind(ErrStaleStream, nil, fmt.Sprintf("%d ms since last message", c.watchdog.Elapsed(now).Milliseconds()))
		c.log.Info(stale, ". Attempt to reconnect.")
		c.metrics.reconnect("stale")
		c.closeTransport()
		c.setStatus(StatusUnknown, EventMessage{})
		c.setState(StateWaitingRetry)
	}
	return nil
}

// extractOne handles at most one message boundary from the buffer and
// reports whether there was one.
func (c *Client) extractOne() bool {
	msg, ok := c.frames.Extract()
	if !ok {
		return false
	}
	if msg == nil {
		c.log.Debug("Dropping event fragment without start marker")
		c.metrics.message(MessageDropped)
		return true
	}
	status, ev, err := Classify(msg)
	if err != nil {
		c.log.Info("Xml processing error : ", err)
		c.metrics.message(MessageParseError)
	} else {
		c.metrics.message(MessageClassified)
		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
	c.setStatus(status, ev)
	c.watchdog.MarkSeen(c.now())
	return true
}

// attach takes ownership of a connected transport. Cancelling ctx closes it,
// which unblocks a pending read.
func (c *Client) attach(ctx context.Context, t Transport) {
	c.transport = t
	c.unwatch = context.AfterFunc(ctx, func() { t.Close() })
}

func (c *Client) closeTransport() {
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			c.log.Debug("Closing transport : ", err)
		}
		c.transport = nil
	}
}

func (c *Client) setState(to ConnectionState) {
	from := c.state
	c.state = to
	c.metrics.state(to)
	c.log.Debugf("Connection state %s -> %s", from, to)
	if c.onState != nil {
		c.onState(from, to)
	}
}

func (c *Client) setStatus(status CameraStatus, ev EventMessage) {
	if !c.status.Set(status) {
		return
	}
	c.metrics.status(status)
	if ev.EventType != "" {
		c.log.Infof("Camera status changed to %s (eventType=%s eventState=%s)", status, ev.EventType, ev.EventState)
	} else {
		c.log.Infof("Camera status changed to %s", status)
	}
}

// forceUnknown is the last status update of a worker. A sink that panics
// here is logged and ignored since the worker is already stopping.
func (c *Client) forceUnknown() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("Status sink failed while stopping : %v", r)
		}
	}()
	c.setStatus(StatusUnknown, EventMessage{})
}

// discardConnect closes a transport from a connect attempt nobody waits for.
func discardConnect(pending <-chan ConnectResult) {
	if pending == nil {
		return
	}
	if res := <-pending; res.Transport != nil {
		res.Transport.Close()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
