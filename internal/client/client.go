package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/ircnet/internal/dialer"
	"github.com/die-net/ircnet/internal/ircconn"
	"github.com/die-net/ircnet/internal/ircmsg"
)

// DefaultReconnectDelay is the fixed wait between losing a connection and
// the next connect attempt.
const DefaultReconnectDelay = 5 * time.Second

// Connector builds a stream for a chain. *dialer.Connector implements it.
type Connector interface {
	Connect(ctx context.Context, chain dialer.Chain) (dialer.Stream, error)
}

type Config struct {
	Chain dialer.Chain
	// ReconnectDelay defaults to DefaultReconnectDelay.
	ReconnectDelay time.Duration
	Logger         *zap.Logger
}

type stopper interface {
	Stop() bool
}

// Client is one connection slot: it connects, delivers events, and
// reconnects after a fixed delay until shut down.
type Client struct {
	chain     dialer.Chain
	delay     time.Duration
	connector Connector
	events    Events
	log       *zap.Logger
	afterFunc func(time.Duration, func()) stopper

	evs      chan event
	quit     chan struct{}
	stopReq  chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	live *ircconn.Conn

	// Owned by the Run goroutine.
	conns         map[ircconn.ID]*ircconn.Conn
	nextID        ircconn.ID
	attempts      uint64
	attempt       uint64 // in-flight connect attempt, 0 if none
	cancelAttempt context.CancelFunc
	timer         stopper
	gen           uint64 // generation of the pending timer
	stopping      bool
}

// New returns a Client for cfg. Nothing happens until Run is called.
func New(cfg Config, connector Connector, events Events) (*Client, error) {
	if err := cfg.Chain.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		chain:     cfg.Chain,
		delay:     cfg.ReconnectDelay,
		connector: connector,
		events:    events,
		log:       cfg.Logger.With(zap.Stringer("chain", cfg.Chain)),
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		evs:     make(chan event, 64),
		quit:    make(chan struct{}),
		stopReq: make(chan struct{}),
		conns:   make(map[ircconn.ID]*ircconn.Conn),
	}, nil
}

// Run connects and processes events until ctx is canceled or Shutdown is
// called, then closes the connection and returns once it is torn down. Run
// must be called at most once.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.quit)

	c.startAttempt(ctx)

	done := ctx.Done()
	stop := c.stopReq
	for !c.stopping || len(c.conns) > 0 || c.attempt != 0 {
		select {
		case <-done:
			done = nil
			c.beginShutdown()
		case <-stop:
			stop = nil
			c.beginShutdown()
		case ev := <-c.evs:
			c.handle(ctx, ev)
		}
	}
	return nil
}

// Shutdown asks Run to close the connection, cancel any pending reconnect
// and return. It does not wait.
func (c *Client) Shutdown() {
	c.stopOnce.Do(func() {
		close(c.stopReq)
	})
}

// Connected reports whether a connection is live.
func (c *Client) Connected() bool {
	return c.liveConn() != nil
}

// Send queues one IRC line, with or without its CR LF, on the live
// connection. It returns false if there is no live connection or line is
// empty or holds more than one line.
func (c *Client) Send(line string) bool {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if line == "" || strings.ContainsAny(line, "\r\n") {
		return false
	}

	conn := c.liveConn()
	if conn == nil {
		return false
	}

	b := make([]byte, 0, len(line)+2)
	b = append(b, line...)
	b = append(b, '\r', '\n')
	return conn.Write(b, c.writeDone) == nil
}

// SendMessage queues m on the live connection.
func (c *Client) SendMessage(m *ircmsg.Message) bool {
	return c.Send(m.String())
}

func (c *Client) writeDone(err error) {
	if err != nil && !errors.Is(err, ircconn.ErrClosed) {
		c.log.Debug("write failed", zap.Error(err))
	}
}

func (c *Client) liveConn() *ircconn.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *Client) setLive(conn *ircconn.Conn) {
	c.mu.Lock()
	c.live = conn
	c.mu.Unlock()
}

// post hands ev to the Run loop. It returns false once Run has returned.
func (c *Client) post(ev event) bool {
	select {
	case c.evs <- ev:
		return true
	case <-c.quit:
		return false
	}
}

func (c *Client) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case connectedEvent:
		c.handleConnected(ev)
	case messageEvent:
		if _, ok := c.conns[ev.conn]; ok {
			c.events.OnIRC(ev.msg)
		}
	case closedEvent:
		c.handleClosed(ev)
	case timerEvent:
		c.handleTimer(ctx, ev)
	}
}

func (c *Client) startAttempt(ctx context.Context) {
	c.attempts++
	id := c.attempts
	actx, cancel := context.WithCancel(ctx)
	c.attempt, c.cancelAttempt = id, cancel

	c.log.Info("connecting")
	go func() {
		s, err := c.connector.Connect(actx, c.chain)
		if !c.post(connectedEvent{attempt: id, stream: s, err: err}) && s != nil {
			_ = s.Close()
		}
	}()
}

func (c *Client) handleConnected(ev connectedEvent) {
	if ev.attempt != c.attempt {
		if ev.stream != nil {
			_ = ev.stream.Close()
		}
		return
	}
	c.cancelAttempt()
	c.attempt, c.cancelAttempt = 0, nil

	if ev.err != nil {
		if c.stopping {
			return
		}
		c.log.Warn("connect failed", zap.Error(ev.err))
		c.events.OnIRCErr(ev.err.Error())
		c.scheduleReconnect()
		return
	}
	if c.stopping {
		_ = ev.stream.Close()
		return
	}

	c.nextID++
	conn := ircconn.New(c.nextID, ev.stream, connHandler{c: c}, c.log)
	c.conns[conn.ID()] = conn
	c.setLive(conn)

	info := ev.stream.Info()
	c.log.Info("connected", zap.Uint64("conn", uint64(conn.ID())), zap.Stringer("stream", info))
	c.events.OnConnect(info)
}

func (c *Client) handleClosed(ev closedEvent) {
	conn, ok := c.conns[ev.conn]
	if !ok {
		return
	}
	delete(c.conns, ev.conn)
	if c.liveConn() == conn {
		c.setLive(nil)
	}

	if ev.err != nil {
		c.log.Warn("connection lost", zap.Uint64("conn", uint64(ev.conn)), zap.Error(ev.err))
		c.events.OnIRCErr(ev.err.Error())
	} else {
		c.log.Info("disconnected", zap.Uint64("conn", uint64(ev.conn)))
	}
	c.events.OnDisconnect()
	c.scheduleReconnect()
}

// scheduleReconnect starts the reconnect timer unless the slot is stopping,
// busy, or already has one pending.
func (c *Client) scheduleReconnect() {
	if c.stopping || c.timer != nil || c.attempt != 0 || c.liveConn() != nil {
		return
	}

	c.gen++
	gen := c.gen
	c.timer = c.afterFunc(c.delay, func() {
		c.post(timerEvent{gen: gen})
	})
	c.log.Info("reconnect scheduled", zap.Duration("delay", c.delay))
}

// handleTimer starts the next attempt. A fire whose generation no longer
// matches belongs to a timer that was canceled after it fired.
func (c *Client) handleTimer(ctx context.Context, ev timerEvent) {
	if c.stopping || c.timer == nil || ev.gen != c.gen {
		return
	}
	c.timer = nil
	c.startAttempt(ctx)
}

func (c *Client) beginShutdown() {
	if c.stopping {
		return
	}
	c.stopping = true
	c.log.Info("shutting down")

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
		c.gen++
	}
	if c.cancelAttempt != nil {
		c.cancelAttempt()
	}
	// Closing a TLS stream can block on close_notify. Run keeps looping
	// until each conn reports its close.
	for _, conn := range c.conns {
		go func() {
			_ = conn.Close()
		}()
	}
}
