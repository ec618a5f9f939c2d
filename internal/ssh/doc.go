// Package ssh provides the SSH tunnel layer of a connection chain.
//
// Dial runs an SSH client handshake over an already connected transport and
// opens one "direct-tcpip" channel to the destination, the equivalent of
// "ssh -W host:port". The returned net.Conn owns the SSH client: closing it
// closes the channel, the client and the transport beneath.
//
// Authentication offers public keys (a key file or the running SSH agent)
// before a password. Host keys are checked against a known_hosts file with
// trust on first use.
package ssh
