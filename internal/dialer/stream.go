package dialer

import (
	"net"
	"net/netip"
	"strings"
	"sync"
)

// Stream is the connected end of a Chain. Reads and writes go through every
// layer; Close tears down all of them.
type Stream interface {
	net.Conn
	Info() Info
}

// Info describes how a Stream was built.
type Info struct {
	// Layers names the layers innermost first, e.g. ["tcp", "socks5", "tls"].
	Layers []string
	// SocksBound is the address the SOCKS5 proxy reported, if any.
	SocksBound netip.AddrPort
	// PeerFingerprint is the SHA-256 of the TLS leaf certificate as
	// colon-separated hex, if any.
	PeerFingerprint string
}

func (i Info) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(i.Layers, "+"))
	if i.SocksBound.IsValid() {
		b.WriteString(" socks=")
		b.WriteString(i.SocksBound.String())
	}
	if i.PeerFingerprint != "" {
		b.WriteString(" tls=")
		b.WriteString(i.PeerFingerprint)
	}
	return b.String()
}

// stream is the single Stream implementation. Conn is the outermost layer:
// the raw *net.TCPConn, the ssh channel, or a *tls.Conn wrapping either.
// SOCKS5 leaves the raw connection in place once negotiated. Closing the
// outermost layer closes the ones below it.
type stream struct {
	net.Conn
	info Info

	closeOnce sync.Once
	closeErr  error
}

func (s *stream) Info() Info {
	return s.info
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Conn.Close()
	})
	return s.closeErr
}
