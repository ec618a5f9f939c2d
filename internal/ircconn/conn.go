package ircconn

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/die-net/ircnet/internal/ircmsg"
)

// ReadBufferSize bounds one inbound line. Longer lines are dropped.
const ReadBufferSize = 131072

// ErrClosed is passed to write completions released at teardown, and
// returned by Write once the connection is closing.
var ErrClosed = errors.New("ircconn: connection closed")

// ID identifies a Conn within its owner.
type ID uint64

// State is the lifecycle of a Conn.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	}
	return "unknown"
}

// Handler receives what a Conn reads. Both methods are called from the
// Conn's read goroutine; HandleClose is called exactly once, last.
type Handler interface {
	HandleMessage(id ID, m *ircmsg.Message)
	// HandleClose reports the end of the connection. err is nil for an
	// orderly close by either side.
	HandleClose(id ID, err error)
}

type writeRequest struct {
	b    []byte
	done func(error)
}

// Conn is a live IRC connection over one stream.
type Conn struct {
	id      ID
	stream  io.ReadWriteCloser
	handler Handler
	log     *zap.Logger

	state atomic.Int32

	mu       sync.Mutex
	queue    []writeRequest
	flushing bool
	closed   bool
	byUser   bool
	err      error
	flushes  sync.WaitGroup

	// buf is the concatenation of one batch. Only the flushing goroutine
	// touches it.
	buf []byte

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// New takes ownership of stream, starts the read loop and returns the Conn in
// the Connected state.
func New(id ID, stream io.ReadWriteCloser, h Handler, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Conn{
		id:      id,
		stream:  stream,
		handler: h,
		log:     log.With(zap.Uint64("conn", uint64(id))),
		done:    make(chan struct{}),
	}
	c.state.Store(int32(Connected))
	go c.readLoop()
	return c
}

func (c *Conn) ID() ID {
	return c.id
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

// Done is closed once the connection reached Disconnected and the handler
// was notified.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Write queues b for sending. The Conn owns b until done is called, so the
// caller must not modify it. done, if non-nil, is called exactly once, in
// enqueue order: with nil after b was fully handed to the stream, with the
// write error if that failed, or with ErrClosed if the connection closed
// first.
//
// Write returns ErrClosed, without calling done, if the connection is
// already closing.
func (c *Conn) Write(b []byte, done func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.queue = append(c.queue, writeRequest{b: b, done: done})
	if !c.flushing {
		c.flushing = true
		c.flushes.Add(1)
		go c.flush()
	}
	return nil
}

// flush writes the whole queue as one batch, releases it, and repeats until
// the queue is empty. A Conn has at most one flush running.
func (c *Conn) flush() {
	defer c.flushes.Done()

	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		closed := c.closed
		if len(batch) == 0 {
			c.flushing = false
			c.mu.Unlock()
			return
		}
		if closed {
			c.flushing = false
			c.mu.Unlock()
			release(batch, ErrClosed)
			return
		}
		c.mu.Unlock()

		c.buf = c.buf[:0]
		for _, r := range batch {
			c.buf = append(c.buf, r.b...)
		}
		if _, err := c.stream.Write(c.buf); err != nil {
			release(batch, err)
			c.fail(err)
			continue
		}
		release(batch, nil)
	}
}

func release(batch []writeRequest, err error) {
	for _, r := range batch {
		if r.done != nil {
			r.done(err)
		}
	}
}

// Close shuts the stream down. It is idempotent and does not wait; use Done
// to wait for teardown.
func (c *Conn) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.byUser = true
	}
	c.mu.Unlock()
	return c.shutdown()
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if !c.closed && c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	_ = c.shutdown()
}

// shutdown moves to Closing, closes the stream and, unless a flush is
// running and will do it, releases the queued writes.
func (c *Conn) shutdown() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(Closing))

		c.mu.Lock()
		c.closed = true
		var pending []writeRequest
		if !c.flushing {
			pending = c.queue
			c.queue = nil
		}
		c.mu.Unlock()

		c.closeErr = c.stream.Close()
		release(pending, ErrClosed)
	})
	return c.closeErr
}

func (c *Conn) readLoop() {
	r := bufio.NewReaderSize(c.stream, ReadBufferSize)

	var err error
	for {
		var line []byte
		line, err = r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			c.log.Debug("dropping overlong line", zap.Int("limit", ReadBufferSize))
			if err = discardLine(r); err != nil {
				break
			}
			continue
		}
		if err != nil {
			// A partial line at end of stream is dropped.
			break
		}
		c.deliver(line)
	}

	_ = c.shutdown()
	c.flushes.Wait()
	c.state.Store(int32(Disconnected))

	c.handler.HandleClose(c.id, c.cause(err))
	close(c.done)
}

// cause picks the error to report: a write failure first, then the read
// error unless the close was orderly.
func (c *Conn) cause(readErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.err != nil:
		return c.err
	case c.byUser, errors.Is(readErr, io.EOF):
		return nil
	}
	return readErr
}

// discardLine skips input up to and including the next newline.
func discardLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

func (c *Conn) deliver(line []byte) {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(line) == 0 {
		return
	}

	m, err := ircmsg.Parse(string(line))
	if err != nil {
		c.log.Debug("dropping unparsable line", zap.Error(err))
		return
	}
	c.handler.HandleMessage(c.id, m)
}
