package dialer

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"go.uber.org/zap"

	"github.com/die-net/ircnet/internal/socks5"
	internalssh "github.com/die-net/ircnet/internal/ssh"
)

// ConnectError reports which layer of a chain failed.
type ConnectError struct {
	Layer string
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Layer, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Connector executes connection chains.
type Connector struct {
	cfg Config
}

func NewConnector(cfg Config) *Connector {
	return &Connector{cfg: cfg}
}

// Connect executes chain inner to outer and returns the resulting stream.
//
// The raw layer connects first; each later layer runs its handshake over the
// stream built so far and replaces it. If any step fails, or ctx is
// canceled, everything opened so far is closed and a *ConnectError is
// returned.
func (c *Connector) Connect(ctx context.Context, chain Chain) (Stream, error) {
	if err := chain.Validate(); err != nil {
		return nil, &ConnectError{Layer: "chain", Err: err}
	}
	log := c.cfg.logger().With(zap.Stringer("chain", chain))

	raw := chain.Layers[0].(RawLayer)
	conn, err := c.dialRaw(ctx, chain.firstHop(), raw.Bind)
	if err != nil {
		return nil, &ConnectError{Layer: raw.layerName(), Err: err}
	}
	s := &stream{Conn: conn, info: Info{Layers: []string{raw.layerName()}}}
	log.Debug("tcp connected", zap.Stringer("local", conn.LocalAddr()), zap.Stringer("remote", conn.RemoteAddr()))

	for _, l := range chain.Layers[1:] {
		if err := c.apply(ctx, log, s, l, chain.Target); err != nil {
			_ = s.Close()
			return nil, &ConnectError{Layer: l.layerName(), Err: err}
		}
		s.info.Layers = append(s.info.Layers, l.layerName())
	}

	log.Info("connected", zap.Stringer("stream", s.info))
	return s, nil
}

func (c *Connector) apply(ctx context.Context, log *zap.Logger, s *stream, l Layer, target Endpoint) error {
	if c.cfg.NegotiationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.NegotiationTimeout)
		defer cancel()
	}

	switch l := l.(type) {
	case SocksLayer:
		bound, err := socks5.Connect(ctx, s.Conn, socks5.Target{Host: target.Host, Port: target.Port})
		if err != nil {
			return err
		}
		s.info.SocksBound = bound
		return nil

	case SSHLayer:
		cfg, err := sshConfig(l, log.With(zap.Stringer("ssh_server", l.Server)))
		if err != nil {
			return err
		}
		tun, err := internalssh.Dial(ctx, s.Conn, cfg, l.Server.String(), target.String())
		if err != nil {
			return err
		}
		s.Conn = tun
		return nil

	case TLSLayer:
		tc := tls.Client(s.Conn, c.tlsConfig(l, target))
		if err := tc.HandshakeContext(ctx); err != nil {
			return fmt.Errorf("tls handshake: %w", err)
		}
		s.Conn = tc
		s.info.PeerFingerprint = fingerprint(tc.ConnectionState())
		return nil
	}

	return fmt.Errorf("unsupported layer %T", l)
}

func (c *Connector) dialRaw(ctx context.Context, hop, bind Endpoint) (net.Conn, error) {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	if !bind.IsZero() {
		local, err := resolveBind(ctx, bind)
		if err != nil {
			return nil, err
		}
		d.LocalAddr = local
		if bind.Port != 0 {
			d.Control = reuseAddrControl
		}
	}

	conn, err := d.DialContext(ctx, "tcp", hop.String())
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", hop, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAliveConfig(c.cfg.KeepAlive)
	}
	return conn, nil
}

func resolveBind(ctx context.Context, bind Endpoint) (*net.TCPAddr, error) {
	if bind.Host == "" {
		return &net.TCPAddr{Port: int(bind.Port)}, nil
	}
	if a, err := netip.ParseAddr(bind.Host); err == nil {
		return net.TCPAddrFromAddrPort(netip.AddrPortFrom(a, bind.Port)), nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", bind.Host)
	if err != nil {
		return nil, fmt.Errorf("resolve bind host %s: %w", bind.Host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve bind host %s: no addresses", bind.Host)
	}
	return net.TCPAddrFromAddrPort(netip.AddrPortFrom(addrs[0], bind.Port)), nil
}

func sshConfig(l SSHLayer, log *zap.Logger) (internalssh.ClientConfig, error) {
	signers, err := internalssh.LoadSigners(l.KeyPath)
	if err != nil {
		return internalssh.ClientConfig{}, err
	}
	hostKeyCallback, err := internalssh.NewHostKeyCallback(l.KnownHostsPath, log)
	if err != nil {
		return internalssh.ClientConfig{}, err
	}
	return internalssh.ClientConfig{
		Username:        l.User,
		Password:        l.Password,
		Signers:         signers,
		HostKeyCallback: hostKeyCallback,
	}, nil
}

func (c *Connector) tlsConfig(l TLSLayer, target Endpoint) *tls.Config {
	sni := l.SNI
	if sni == "" {
		sni = target.Host
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: sni,
		RootCAs:    c.cfg.RootCAs,
	}

	switch {
	case l.VerifyName != "":
		// The default check would use ServerName; verify against VerifyName instead.
		cfg.InsecureSkipVerify = true //nolint:gosec // Replaced by VerifyConnection.
		cfg.VerifyConnection = verifyPeerName(l.VerifyName, c.cfg.RootCAs)
	case l.InsecureSkipVerify:
		cfg.InsecureSkipVerify = true //nolint:gosec // User explicitly disabled verification.
	}
	return cfg
}

func verifyPeerName(name string, roots *x509.CertPool) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.New("tls: no peer certificate")
		}
		opts := x509.VerifyOptions{
			DNSName:       name,
			Roots:         roots,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range cs.PeerCertificates[1:] {
			opts.Intermediates.AddCert(cert)
		}
		_, err := cs.PeerCertificates[0].Verify(opts)
		return err
	}
}

func fingerprint(cs tls.ConnectionState) string {
	if len(cs.PeerCertificates) == 0 {
		return ""
	}
	sum := sha256.Sum256(cs.PeerCertificates[0].Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(parts, ":")
}
