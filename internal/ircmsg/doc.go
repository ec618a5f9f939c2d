// Package ircmsg parses and encodes single IRC protocol lines.
//
// A line has the shape
//
//	[@tags ][:source ]command[ param]*[ :trailing]
//
// where tags is a ';'-separated list of key[=value] pairs whose values use
// the IRCv3 escaping table. Parsing never panics on hostile input; malformed
// lines yield a *ParseError and the caller is expected to drop them.
package ircmsg
