package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/die-net/ircnet/internal/dialer"
)

type Endpoint struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`
}

func (e Endpoint) endpoint() dialer.Endpoint {
	return dialer.Endpoint{Host: e.Host, Port: e.Port}
}

type TLS struct {
	Enabled  bool   `yaml:"enabled"`
	SNI      string `yaml:"sni"`
	Verify   string `yaml:"verify"`
	Insecure bool   `yaml:"insecure"`
}

type SSH struct {
	Host       string `yaml:"host"`
	Port       uint16 `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Key        string `yaml:"key"`
	KnownHosts string `yaml:"known_hosts"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// File is the on-disk configuration.
type File struct {
	Server Endpoint `yaml:"server"`
	Bind   Endpoint `yaml:"bind"`
	Socks  Endpoint `yaml:"socks"`
	TLS    TLS      `yaml:"tls"`
	SSH    SSH      `yaml:"ssh"`

	ReconnectDelay     time.Duration `yaml:"reconnect_delay"`
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout"`
	TCPKeepAlive       string        `yaml:"tcp_keepalive"`

	Log Log `yaml:"log"`
}

var (
	ErrNoServer       = errors.New("config: server host and port are required")
	ErrTwoTunnels     = errors.New("config: socks and ssh are mutually exclusive")
	ErrInsecureVerify = errors.New("config: tls insecure cannot be combined with verify")
)

// Default returns the configuration used for anything a file leaves out.
func Default() File {
	return File{
		Server:             Endpoint{Port: 6667},
		SSH:                SSH{Port: 22, KnownHosts: defaultKnownHostsPath()},
		ReconnectDelay:     5 * time.Second,
		DialTimeout:        10 * time.Second,
		NegotiationTimeout: 10 * time.Second,
		TCPKeepAlive:       "45:45:3",
		Log:                Log{Level: "info", Format: "console"},
	}
}

// Load reads path over Default. Unknown keys are an error.
func Load(path string) (File, error) {
	f := Default()

	path, err := expandPath(path)
	if err != nil {
		return f, err
	}
	buf, err := os.ReadFile(path) //nolint:gosec // Path is from the command line.
	if err != nil {
		return f, fmt.Errorf("reading config: %w", err)
	}
	if err := f.decode(buf); err != nil {
		return f, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return f, nil
}

func (f *File) decode(buf []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	var err error
	if f.SSH.Key != "" && f.SSH.Key != "agent" {
		if f.SSH.Key, err = expandPath(f.SSH.Key); err != nil {
			return err
		}
	}
	if f.SSH.KnownHosts != "" {
		if f.SSH.KnownHosts, err = expandPath(f.SSH.KnownHosts); err != nil {
			return err
		}
	}
	return nil
}

// SetTunnel replaces the socks and ssh settings with the tunnel described by
// a URL such as socks5://127.0.0.1:9050 or ssh://user@host.
func (f *File) SetTunnel(upstream string) error {
	l, err := dialer.ParseTunnel(upstream)
	if err != nil {
		return err
	}

	f.Socks = Endpoint{}
	f.SSH.Host, f.SSH.User, f.SSH.Password = "", "", ""
	switch l := l.(type) {
	case dialer.SocksLayer:
		f.Socks = Endpoint{Host: l.Proxy.Host, Port: l.Proxy.Port}
	case dialer.SSHLayer:
		f.SSH.Host, f.SSH.Port = l.Server.Host, l.Server.Port
		f.SSH.User, f.SSH.Password = l.User, l.Password
	}
	return nil
}

func (f *File) Validate() error {
	if f.Server.Host == "" || f.Server.Port == 0 {
		return ErrNoServer
	}
	if f.Socks.Host != "" && f.SSH.Host != "" {
		return ErrTwoTunnels
	}
	if f.TLS.Insecure && f.TLS.Verify != "" {
		return ErrInsecureVerify
	}
	if _, err := ParseKeepAlive(f.TCPKeepAlive); err != nil {
		return fmt.Errorf("config: tcp_keepalive: %w", err)
	}
	return nil
}

// Chain assembles the connection chain: raw, then socks or ssh if set, then
// tls if enabled.
func (f *File) Chain() (dialer.Chain, error) {
	if err := f.Validate(); err != nil {
		return dialer.Chain{}, err
	}

	layers := []dialer.Layer{dialer.RawLayer{Bind: f.Bind.endpoint()}}
	switch {
	case f.Socks.Host != "":
		port := f.Socks.Port
		if port == 0 {
			port = 1080
		}
		layers = append(layers, dialer.SocksLayer{Proxy: dialer.Endpoint{Host: f.Socks.Host, Port: port}})
	case f.SSH.Host != "":
		layers = append(layers, dialer.SSHLayer{
			Server:         dialer.Endpoint{Host: f.SSH.Host, Port: f.SSH.Port},
			User:           f.SSH.User,
			Password:       f.SSH.Password,
			KeyPath:        f.SSH.Key,
			KnownHostsPath: f.SSH.KnownHosts,
		})
	}
	if f.TLS.Enabled {
		layers = append(layers, dialer.TLSLayer{
			SNI:                f.TLS.SNI,
			VerifyName:         f.TLS.Verify,
			InsecureSkipVerify: f.TLS.Insecure,
		})
	}
	return dialer.NewChain(f.Server.endpoint(), layers...)
}

// DialerConfig returns the connector settings.
func (f *File) DialerConfig() (dialer.Config, error) {
	ka, err := ParseKeepAlive(f.TCPKeepAlive)
	if err != nil {
		return dialer.Config{}, fmt.Errorf("config: tcp_keepalive: %w", err)
	}
	return dialer.Config{
		DialTimeout:        f.DialTimeout,
		NegotiationTimeout: f.NegotiationTimeout,
		KeepAlive:          ka,
	}, nil
}

// expandPath resolves a leading ~/ and makes path absolute.
func expandPath(path string) (string, error) {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return path, err
		}
		path = filepath.Join(home, rest)
	}
	return filepath.Abs(path)
}

func defaultKnownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}
