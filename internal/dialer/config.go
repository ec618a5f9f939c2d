package dialer

import (
	"crypto/x509"
	"net"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	// DialTimeout bounds DNS lookup plus TCP connect of the raw layer.
	DialTimeout time.Duration
	// NegotiationTimeout bounds each SOCKS5, SSH or TLS handshake.
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig

	// RootCAs verifies TLS peers. Nil uses the system pool.
	RootCAs *x509.CertPool

	Logger *zap.Logger
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
