// Package ircconn owns one established IRC stream.
//
// A Conn serializes outbound writes through a FIFO queue flushed by at most
// one goroutine at a time, and runs a read loop that splits the inbound byte
// stream into lines and delivers every line that parses as an IRC message.
// When the stream ends, or Close is called, pending writes are released with
// ErrClosed and the owner is notified exactly once.
package ircconn
