package socks5

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"time"

	txsocks5 "github.com/txthinking/socks5"
	"golang.org/x/net/idna"
)

// Target is the destination the proxy is asked to reach. Host is either a
// literal IP address or a domain name that the proxy resolves.
type Target struct {
	Host string
	Port uint16
}

func (t Target) String() string {
	if a, err := netip.ParseAddr(t.Host); err == nil {
		return netip.AddrPortFrom(a, t.Port).String()
	}
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// AppendAddr appends ATYP, DST.ADDR and DST.PORT for t to b.
func (t Target) AppendAddr(b []byte) ([]byte, error) {
	if t.Host == "" {
		return b, ErrEmptyHost
	}

	if a, err := netip.ParseAddr(t.Host); err == nil {
		a = a.Unmap()
		if a.Is4() {
			b = append(b, txsocks5.ATYPIPv4)
		} else {
			b = append(b, txsocks5.ATYPIPv6)
		}
		b = append(b, a.AsSlice()...)
		return binary.BigEndian.AppendUint16(b, t.Port), nil
	}

	host, err := idna.Lookup.ToASCII(t.Host)
	if err != nil {
		return b, fmt.Errorf("socks5: target host %q: %w", t.Host, err)
	}
	if len(host) > 255 {
		return b, ErrDomainTooLong
	}
	b = append(b, txsocks5.ATYPDomain, byte(len(host)))
	b = append(b, host...)
	return binary.BigEndian.AppendUint16(b, t.Port), nil
}

type state int

const (
	stateStart state = iota
	stateRecvHello
	stateSendConnect
	stateRecvReply
	stateRecvAddress
	stateFinishIPv4
	stateFinishIPv6
	stateDone
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateRecvHello:
		return "recv hello"
	case stateSendConnect:
		return "send connect"
	case stateRecvReply:
		return "recv reply"
	case stateRecvAddress:
		return "recv address"
	case stateFinishIPv4, stateFinishIPv6:
		return "finish"
	default:
		return "done"
	}
}

// negotiation holds the state of one CONNECT exchange. buf is reused for
// every frame and resized per step.
type negotiation struct {
	rw     io.ReadWriter
	target Target
	buf    []byte
	bound  netip.AddrPort
}

// Connect runs a no-auth CONNECT negotiation for target over rw, which must
// already be connected to the proxy, and returns the bound address the proxy
// reported.
//
// Steps run strictly in order, each waiting on exactly one read or write. Any
// I/O error aborts the negotiation. If rw has a SetDeadline method, canceling
// ctx unblocks the step in flight.
func Connect(ctx context.Context, rw io.ReadWriter, target Target) (netip.AddrPort, error) {
	if d, ok := rw.(interface{ SetDeadline(time.Time) error }); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetDeadline(time.Unix(1, 0))
		})
		defer stop()
	}

	n := &negotiation{rw: rw, target: target, buf: make([]byte, 0, 32)}
	for st := stateStart; st != stateDone; {
		next, err := n.step(st)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return netip.AddrPort{}, ctxErr
			}
			return netip.AddrPort{}, fmt.Errorf("socks5 %s: %w", st, err)
		}
		st = next
	}
	return n.bound, nil
}

func (n *negotiation) step(st state) (state, error) {
	switch st {
	case stateStart:
		n.buf = append(n.buf[:0], txsocks5.Ver, 1, txsocks5.MethodNone)
		return stateRecvHello, n.write()

	case stateRecvHello:
		// VER METHOD
		return stateSendConnect, n.read(2)

	case stateSendConnect:
		if n.buf[0] != txsocks5.Ver {
			return stateDone, ErrVersion
		}
		if n.buf[1] != txsocks5.MethodNone {
			return stateDone, fmt.Errorf("%w: %#02x", ErrAuthMethod, n.buf[1])
		}
		var err error
		n.buf, err = n.target.AppendAddr(append(n.buf[:0], txsocks5.Ver, txsocks5.CmdConnect, 0x00))
		if err != nil {
			return stateDone, err
		}
		return stateRecvReply, n.write()

	case stateRecvReply:
		// VER REP RSV ATYP
		return stateRecvAddress, n.read(4)

	case stateRecvAddress:
		if n.buf[0] != txsocks5.Ver {
			return stateDone, ErrVersion
		}
		if rep := ReplyCode(n.buf[1]); rep != Succeeded {
			return stateDone, &ReplyError{Code: rep}
		}
		switch n.buf[3] {
		case txsocks5.ATYPIPv4:
			return stateFinishIPv4, n.read(4 + 2)
		case txsocks5.ATYPIPv6:
			return stateFinishIPv6, n.read(16 + 2)
		default:
			return stateDone, fmt.Errorf("bound address type %#02x: %w", n.buf[3], ErrAddressNotSupported)
		}

	case stateFinishIPv4:
		n.bound = netip.AddrPortFrom(netip.AddrFrom4([4]byte(n.buf[:4])), binary.BigEndian.Uint16(n.buf[4:]))
		return stateDone, nil

	case stateFinishIPv6:
		n.bound = netip.AddrPortFrom(netip.AddrFrom16([16]byte(n.buf[:16])), binary.BigEndian.Uint16(n.buf[16:]))
		return stateDone, nil
	}

	return stateDone, fmt.Errorf("socks5: invalid state %d", st)
}

func (n *negotiation) read(size int) error {
	if cap(n.buf) < size {
		n.buf = make([]byte, size)
	}
	n.buf = n.buf[:size]
	_, err := io.ReadFull(n.rw, n.buf)
	return err
}

func (n *negotiation) write() error {
	for b := n.buf; len(b) > 0; {
		w, err := n.rw.Write(b)
		if err != nil {
			return err
		}
		b = b[w:]
	}
	return nil
}
