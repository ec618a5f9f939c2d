// Package socks5 implements the client side of a SOCKS5 CONNECT negotiation
// (RFC 1928, no-auth only) plus the few server-side helpers the tests use to
// stand up fake proxies.
//
// Frame constants come from github.com/txthinking/socks5.
package socks5
