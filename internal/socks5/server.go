package socks5

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// ServerNegotiate reads a client hello from rw and selects no-auth. If the
// client does not offer no-auth, the "no acceptable methods" reply is sent
// and an error returned.
func ServerNegotiate(rw io.ReadWriter) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(rw)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	if !slices.Contains(neg.Methods, txsocks5.MethodNone) {
		// RFC 1928: 0xFF indicates no acceptable methods.
		_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(rw)
		return errors.New("client does not support no-auth")
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(rw); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// ServerReadRequest reads one request frame.
func ServerReadRequest(r io.Reader) (*txsocks5.Request, error) {
	req, err := txsocks5.NewRequestFrom(r)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return req, nil
}

// WriteReply writes a reply carrying code and the bound address. An invalid
// bound address is sent as 0.0.0.0:0.
func WriteReply(w io.Writer, code ReplyCode, bound netip.AddrPort) error {
	addr := bound.Addr().Unmap()
	atyp := txsocks5.ATYPIPv6
	switch {
	case !addr.IsValid():
		addr = netip.IPv4Unspecified()
		atyp = txsocks5.ATYPIPv4
	case addr.Is4():
		atyp = txsocks5.ATYPIPv4
	}

	port := []byte{byte(bound.Port() >> 8), byte(bound.Port())}
	if _, err := txsocks5.NewReply(byte(code), atyp, addr.AsSlice(), port).WriteTo(w); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}
