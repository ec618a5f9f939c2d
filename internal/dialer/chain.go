package dialer

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Endpoint is a host and port. Host may be a name or a literal address.
type Endpoint struct {
	Host string
	Port uint16
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// IsZero reports whether e is unset.
func (e Endpoint) IsZero() bool {
	return e.Host == "" && e.Port == 0
}

// Layer is one stage of a Chain. The set of layers is closed: RawLayer,
// SocksLayer, SSHLayer and TLSLayer.
type Layer interface {
	layerName() string
}

// RawLayer is the TCP connection every chain starts with. It connects to the
// tunnel server if the chain has one, otherwise to the chain target. Bind, if
// set, is the local address and port to connect from.
type RawLayer struct {
	Bind Endpoint
}

// SocksLayer asks the SOCKS5 proxy at Proxy to connect to the chain target.
// Only the no-auth method is offered.
type SocksLayer struct {
	Proxy Endpoint
}

// SSHLayer opens a direct-tcpip channel to the chain target through the SSH
// server at Server.
type SSHLayer struct {
	Server         Endpoint
	User           string
	Password       string
	KeyPath        string // private key file, "agent", or empty
	KnownHostsPath string // empty disables host key checking
}

// TLSLayer runs a TLS client handshake over the layer below.
//
// SNI defaults to the target host. VerifyName, if set, is the name the peer
// certificate must be valid for; otherwise the SNI name is verified.
// InsecureSkipVerify turns verification off and is only accepted with an
// empty VerifyName.
type TLSLayer struct {
	SNI                string
	VerifyName         string
	InsecureSkipVerify bool
}

func (RawLayer) layerName() string   { return "tcp" }
func (SocksLayer) layerName() string { return "socks5" }
func (SSHLayer) layerName() string   { return "ssh" }
func (TLSLayer) layerName() string   { return "tls" }

var (
	ErrNoTarget         = errors.New("chain: missing target host or port")
	ErrRawNotFirst      = errors.New("chain: first layer must be raw tcp")
	ErrDuplicateTunnel  = errors.New("chain: at most one socks5 or ssh layer")
	ErrLayerOrder       = errors.New("chain: tls must be the single outermost layer")
	ErrInsecureVerify   = errors.New("chain: insecure tls skip-verify conflicts with verify name")
	ErrMissingLayerAddr = errors.New("chain: tunnel layer needs host and port")
)

// Chain is an immutable description of how to reach Target. Layers are
// innermost first.
type Chain struct {
	Target Endpoint
	Layers []Layer
}

// NewChain validates and returns a chain reaching target through layers.
func NewChain(target Endpoint, layers ...Layer) (Chain, error) {
	c := Chain{Target: target, Layers: append([]Layer(nil), layers...)}
	if err := c.Validate(); err != nil {
		return Chain{}, err
	}
	return c, nil
}

// Validate checks the chain invariants: a raw first layer, at most one
// tunnel directly above it, and at most one tls layer, outermost.
func (c Chain) Validate() error {
	if c.Target.Host == "" || c.Target.Port == 0 {
		return ErrNoTarget
	}
	if len(c.Layers) == 0 {
		return ErrRawNotFirst
	}
	if _, ok := c.Layers[0].(RawLayer); !ok {
		return ErrRawNotFirst
	}

	tunnels := 0
	for i, l := range c.Layers[1:] {
		switch l := l.(type) {
		case RawLayer:
			return ErrRawNotFirst
		case SocksLayer:
			if l.Proxy.Host == "" || l.Proxy.Port == 0 {
				return ErrMissingLayerAddr
			}
			tunnels++
		case SSHLayer:
			if l.Server.Host == "" || l.Server.Port == 0 {
				return ErrMissingLayerAddr
			}
			tunnels++
		case TLSLayer:
			if l.InsecureSkipVerify && l.VerifyName != "" {
				return ErrInsecureVerify
			}
			if i+1 != len(c.Layers)-1 {
				return ErrLayerOrder
			}
		default:
			return fmt.Errorf("chain: unknown layer %T", l)
		}
	}
	if tunnels > 1 {
		return ErrDuplicateTunnel
	}
	return nil
}

// firstHop returns where the raw layer connects.
func (c Chain) firstHop() Endpoint {
	for _, l := range c.Layers {
		switch l := l.(type) {
		case SocksLayer:
			return l.Proxy
		case SSHLayer:
			return l.Server
		}
	}
	return c.Target
}

func (c Chain) String() string {
	s := ""
	for i, l := range c.Layers {
		if i > 0 {
			s += "+"
		}
		s += l.layerName()
	}
	return s + "://" + c.Target.String()
}
