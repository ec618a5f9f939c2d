package client

import (
	"github.com/die-net/ircnet/internal/dialer"
	"github.com/die-net/ircnet/internal/ircconn"
	"github.com/die-net/ircnet/internal/ircmsg"
)

// Events receives what happens on the connection slot. All methods are
// called from the Run goroutine.
type Events interface {
	// OnConnect is called when a connection becomes usable.
	OnConnect(info dialer.Info)
	// OnDisconnect is called when a usable connection is lost.
	OnDisconnect()
	// OnIRC is called for every inbound line that parses.
	OnIRC(m *ircmsg.Message)
	// OnIRCErr reports a transport error: a failed connect attempt or the
	// cause of a lost connection.
	OnIRCErr(text string)
}

// event is anything posted to the Run loop.
type event interface {
	isEvent()
}

type connectedEvent struct {
	attempt uint64
	stream  dialer.Stream
	err     error
}

type messageEvent struct {
	conn ircconn.ID
	msg  *ircmsg.Message
}

type closedEvent struct {
	conn ircconn.ID
	err  error
}

type timerEvent struct {
	gen uint64
}

func (connectedEvent) isEvent() {}
func (messageEvent) isEvent()   {}
func (closedEvent) isEvent()    {}
func (timerEvent) isEvent()     {}

// connHandler forwards what a connection reads to the Run loop.
type connHandler struct {
	c *Client
}

func (h connHandler) HandleMessage(id ircconn.ID, m *ircmsg.Message) {
	h.c.post(messageEvent{conn: id, msg: m})
}

func (h connHandler) HandleClose(id ircconn.ID, err error) {
	h.c.post(closedEvent{conn: id, err: err})
}
