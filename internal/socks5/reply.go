package socks5

import (
	"errors"
	"fmt"

	txsocks5 "github.com/txthinking/socks5"
)

// ReplyCode is the REP field of a SOCKS5 reply.
type ReplyCode byte

const (
	Succeeded           = ReplyCode(txsocks5.RepSuccess)
	GeneralFailure      = ReplyCode(txsocks5.RepServerFailure)
	NotAllowed          = ReplyCode(txsocks5.RepNotAllowed)
	NetworkUnreachable  = ReplyCode(txsocks5.RepNetworkUnreachable)
	HostUnreachable     = ReplyCode(txsocks5.RepHostUnreachable)
	ConnectionRefused   = ReplyCode(txsocks5.RepConnectionRefused)
	TTLExpired          = ReplyCode(txsocks5.RepTTLExpired)
	CommandNotSupported = ReplyCode(txsocks5.RepCommandNotSupported)
	AddressNotSupported = ReplyCode(txsocks5.RepAddressNotSupported)
)

func (c ReplyCode) String() string {
	switch c {
	case Succeeded:
		return "succeeded"
	case GeneralFailure:
		return "general failure"
	case NotAllowed:
		return "connection not allowed by ruleset"
	case NetworkUnreachable:
		return "network unreachable"
	case HostUnreachable:
		return "host unreachable"
	case ConnectionRefused:
		return "connection refused"
	case TTLExpired:
		return "ttl expired"
	case CommandNotSupported:
		return "command not supported"
	case AddressNotSupported:
		return "address type not supported"
	default:
		return fmt.Sprintf("unknown reply %#02x", byte(c))
	}
}

// ReplyError is a non-success reply from the proxy.
type ReplyError struct {
	Code ReplyCode
}

func (e *ReplyError) Error() string {
	return "socks5: " + e.Code.String()
}

// Is matches any *ReplyError carrying the same code, so the sentinels below
// work with errors.Is.
func (e *ReplyError) Is(target error) bool {
	var t *ReplyError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrGeneralFailure      = &ReplyError{Code: GeneralFailure}
	ErrNotAllowed          = &ReplyError{Code: NotAllowed}
	ErrNetworkUnreachable  = &ReplyError{Code: NetworkUnreachable}
	ErrHostUnreachable     = &ReplyError{Code: HostUnreachable}
	ErrConnectionRefused   = &ReplyError{Code: ConnectionRefused}
	ErrTTLExpired          = &ReplyError{Code: TTLExpired}
	ErrCommandNotSupported = &ReplyError{Code: CommandNotSupported}
	ErrAddressNotSupported = &ReplyError{Code: AddressNotSupported}
)

var (
	// ErrVersion means the proxy answered with a version other than 5.
	ErrVersion = errors.New("socks5: unexpected protocol version")
	// ErrAuthMethod means the proxy chose a method other than no-auth.
	ErrAuthMethod = errors.New("socks5: unsupported authentication method")
	// ErrDomainTooLong means the target host does not fit the one byte
	// length prefix.
	ErrDomainTooLong = errors.New("socks5: domain name longer than 255 bytes")
	// ErrEmptyHost means the target has no host.
	ErrEmptyHost = errors.New("socks5: empty target host")
)
