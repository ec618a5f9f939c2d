package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/crypto/ssh"
)

// ClientConfig holds configuration for the SSH tunnel client.
type ClientConfig struct {
	// Username for SSH authentication.
	Username string
	// Password for password authentication (optional if Signers is set).
	Password string
	// Signers for public key authentication (optional if Password is set).
	Signers []ssh.Signer
	// HostKeyCallback verifies the server's host key.
	HostKeyCallback ssh.HostKeyCallback
}

// AuthMethods returns the ssh.AuthMethod slice for this configuration.
// Public key authentication is offered first if available, followed by password.
func (c *ClientConfig) AuthMethods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if len(c.Signers) > 0 {
		methods = append(methods, ssh.PublicKeys(c.Signers...))
	}
	if c.Password != "" {
		methods = append(methods, ssh.Password(c.Password))
	}
	return methods
}

func (c *ClientConfig) validate() error {
	if c.Username == "" {
		return errors.New("ssh tunnel: missing username")
	}
	if c.Password == "" && len(c.Signers) == 0 {
		return errors.New("ssh tunnel: missing password or key")
	}
	if c.HostKeyCallback == nil {
		return errors.New("ssh tunnel: missing host key callback")
	}
	return nil
}

// Dial performs the SSH handshake over conn, which is connected to the SSH
// server at addr, and opens a direct-tcpip channel to target.
//
// Canceling ctx during the handshake closes conn. On error, conn is closed.
func Dial(ctx context.Context, conn net.Conn, cfg ClientConfig, addr, target string) (net.Conn, error) {
	if err := cfg.validate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	cc, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            cfg.AuthMethods(),
		HostKeyCallback: cfg.HostKeyCallback,
	})
	if err != nil {
		stop()
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	client := ssh.NewClient(cc, chans, reqs)

	ch, err := client.DialContext(ctx, "tcp", target)
	if err != nil {
		stop()
		_ = client.Close()
		return nil, fmt.Errorf("ssh direct-tcpip %s: %w", target, err)
	}

	t := &tunnelConn{Conn: ch, client: client}
	if !stop() {
		_ = t.Close()
		return nil, ctx.Err()
	}
	return t, nil
}

// tunnelConn is one direct-tcpip channel that owns its SSH client.
type tunnelConn struct {
	net.Conn
	client *ssh.Client
}

// Close closes the channel and then the SSH client with its transport.
func (c *tunnelConn) Close() error {
	err := c.Conn.Close()
	if cerr := c.client.Close(); err == nil {
		err = cerr
	}
	return err
}
