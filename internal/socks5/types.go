package socks5

import (
	"errors"
	"net"
	"strconv"
)

const SOCKS5VERSION uint8 = 5

// UserPassVersion is the sub-negotiation version of username/password auth.
const UserPassVersion uint8 = 1

const (
	MethodNoAuth uint8 = iota
	MethodGSSAPI
	MethodUserPass
	MethodNoAcceptable uint8 = 0xFF
)

const (
	RequestConnect uint8 = iota + 1
	RequestBind
	RequestUDP
)

const (
	RequestAtypIPV4       uint8 = 1
	RequestAtypDomainname uint8 = 3
	RequestAtypIPV6       uint8 = 4
)

const (
	Succeeded uint8 = iota
	Failure
	Allowed
	NetUnreachable
	HostUnreachable
	ConnRefused
	TTLExpired
	CmdUnsupported
	AddrUnsupported
)

const (
	AuthSuccess uint8 = 0x00
	AuthFailure uint8 = 0x01
)

var (
	// ErrIncomplete means the stream ended before a step had all its bytes.
	ErrIncomplete = errors.New("stream closed before enough bytes were received")

	ErrVersion              = errors.New("unsupported socks version")
	ErrNoAcceptableMethod   = errors.New("no acceptable auth method")
	ErrAuthVersion          = errors.New("unsupported auth version")
	ErrAuthFailed           = errors.New("authentication failed")
	ErrCommandNotSupported  = errors.New("command not supported")
	ErrAddrTypeNotSupported = errors.New("address type not supported")
)

// Credentials is the username/password pair every client must present.
// It is shared by all sessions and never modified after startup.
type Credentials struct {
	Username string
	Password string
}

// Target is the destination negotiated by a client request.
type Target struct {
	Host string
	Port uint16
}

// Address returns the target in host:port form, suitable for dialing.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

func (t Target) String() string { return t.Address() }
