package testutil

import (
	"context"
	"net"
	"net/netip"
	"testing"

	"github.com/die-net/ircnet/internal/socks5"
)

// StartSOCKS5Proxy starts a no-auth SOCKS5 proxy on loopback. If reply is
// socks5.Succeeded it connects to the requested address and relays;
// otherwise it answers every request with reply and hangs up.
func StartSOCKS5Proxy(t *testing.T, ctx context.Context, reply socks5.ReplyCode) net.Listener {
	t.Helper()

	ln := listen(t, ctx)
	serve(t, ln, func(c net.Conn) {
		if err := socks5.ServerNegotiate(c); err != nil {
			return
		}
		req, err := socks5.ServerReadRequest(c)
		if err != nil {
			return
		}
		if reply != socks5.Succeeded {
			_ = socks5.WriteReply(c, reply, netip.AddrPort{})
			return
		}

		var d net.Dialer
		dst, err := d.DialContext(ctx, "tcp", req.Address())
		if err != nil {
			_ = socks5.WriteReply(c, socks5.HostUnreachable, netip.AddrPort{})
			return
		}
		bound := dst.LocalAddr().(*net.TCPAddr).AddrPort()
		if err := socks5.WriteReply(c, socks5.Succeeded, bound); err != nil {
			_ = dst.Close()
			return
		}
		_ = relay(ctx, c, dst)
	})
	return ln
}
