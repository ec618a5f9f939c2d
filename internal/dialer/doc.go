// Package dialer builds the layered byte stream an IRC connection runs on.
//
// A Chain lists layers innermost first: a raw TCP connection, optionally a
// tunnel (SOCKS5 proxy or SSH direct-tcpip channel) and optionally TLS on
// top. Connector.Connect executes the chain in that order and returns a
// Stream, which offers read, write and close whatever layering produced it.
// Any failing step closes everything opened before it.
package dialer
