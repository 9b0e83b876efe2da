package socks5

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Handshake runs greeting, authentication and the CONNECT request, in that
// order, and returns the requested destination. Replies defined by the
// protocol for a failed step are written before the error is returned; the
// caller only has to close the connection.
func (s *Session) Handshake() (*Target, error) {
	if err := s.greeting(); err != nil {
		return nil, err
	}
	if err := s.auth(); err != nil {
		return nil, err
	}
	return s.request()
}

func (s *Session) greeting() error {
	/*
		Read
		   +-----+----------+-----------+
		   | VER | NMETHODS |  METHODS  |
		   +-----+----------+-----------+
		   |  1  |    1     |  1 to 255 |
		   +-----+----------+-----------+
	*/
	hdr, err := s.readN(2)
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	ver, nmethods := hdr[0], int(hdr[1])
	if ver != SOCKS5VERSION {
		return fmt.Errorf("%w: greeting version %d", ErrVersion, ver)
	}

	methods, err := s.readN(nmethods)
	if err != nil {
		return fmt.Errorf("read methods: %w", err)
	}

	/*
		write
		+-----+--------+
		| VER | METHOD |
		+-----+--------+
		|  1  |   1    |
		+-----+--------+
	*/
	if bytes.IndexByte(methods, MethodUserPass) < 0 {
		return replyErr(s.write([]byte{SOCKS5VERSION, MethodNoAcceptable}),
			fmt.Errorf("%w: offered %v", ErrNoAcceptableMethod, methods))
	}
	if err := s.write([]byte{SOCKS5VERSION, MethodUserPass}); err != nil {
		return err
	}

	s.state = StateAuth
	return nil
}

func (s *Session) auth() error {
	/*
		Read
		   +----+------+----------+------+----------+
		   |VER | ULEN |  UNAME   | PLEN |  PASSWD  |
		   +----+------+----------+------+----------+
		   | 1  |  1   | 1 to 255 |  1   | 1 to 255 |
		   +----+------+----------+------+----------+
	*/
	hdr, err := s.readN(2)
	if err != nil {
		return fmt.Errorf("read auth header: %w", err)
	}
	ver, ulen := hdr[0], int(hdr[1])
	if ver != UserPassVersion {
		return fmt.Errorf("%w: %d", ErrAuthVersion, ver)
	}

	uname, err := s.readN(ulen)
	if err != nil {
		return fmt.Errorf("read username: %w", err)
	}
	plen, err := s.readN(1)
	if err != nil {
		return fmt.Errorf("read password length: %w", err)
	}
	passwd, err := s.readN(int(plen[0]))
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	/*
		write
		+----+--------+
		|VER | STATUS |
		+----+--------+
		| 1  |   1    |
		+----+--------+
	*/
	if !s.creds.match(uname, passwd) {
		return replyErr(s.write([]byte{UserPassVersion, AuthFailure}),
			fmt.Errorf("%w: user %q", ErrAuthFailed, uname))
	}
	if err := s.write([]byte{UserPassVersion, AuthSuccess}); err != nil {
		return err
	}
	s.log.Infof("auth ok as %q", uname)

	s.state = StateRequest
	return nil
}

func (s *Session) request() (*Target, error) {
	/*
		Read
		   +----+-----+-------+------+----------+----------+
		   |VER | CMD |  RSV  | ATYP | DST.ADDR | DST.PORT |
		   +----+-----+-------+------+----------+----------+
		   | 1  |  1  | X'00' |  1   | Variable |    2     |
		   +----+-----+-------+------+----------+----------+
	*/
	hdr, err := s.readN(4)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	ver, cmd, atyp := hdr[0], hdr[1], hdr[3]
	if ver != SOCKS5VERSION {
		return nil, fmt.Errorf("%w: request version %d", ErrVersion, ver)
	}
	if cmd != RequestConnect {
		return nil, replyErr(s.Reply(CmdUnsupported), fmt.Errorf("%w: %d", ErrCommandNotSupported, cmd))
	}

	s.state = StateAddress
	target, err := s.address(atyp)
	if err != nil {
		return nil, err
	}

	s.state = StateRelay
	return target, nil
}

func (s *Session) address(atyp uint8) (*Target, error) {
	var (
		host string
		rest []byte
	)
	switch atyp {
	case RequestAtypIPV4:
		b, err := s.readN(4 + 2)
		if err != nil {
			return nil, fmt.Errorf("read ipv4 address: %w", err)
		}
		host = formatIPv4(b[:4])
		rest = b[4:]
	case RequestAtypDomainname:
		l, err := s.readN(1)
		if err != nil {
			return nil, fmt.Errorf("read domain length: %w", err)
		}
		dlen := int(l[0])
		b, err := s.readN(dlen + 2)
		if err != nil {
			return nil, fmt.Errorf("read domain: %w", err)
		}
		host = string(b[:dlen])
		rest = b[dlen:]
	case RequestAtypIPV6:
		b, err := s.readN(16 + 2)
		if err != nil {
			return nil, fmt.Errorf("read ipv6 address: %w", err)
		}
		host = formatIPv6(b[:16])
		rest = b[16:]
	default:
		return nil, replyErr(s.Reply(AddrUnsupported), fmt.Errorf("%w: %d", ErrAddrTypeNotSupported, atyp))
	}

	return &Target{Host: host, Port: binary.BigEndian.Uint16(rest)}, nil
}

func formatIPv4(b []byte) string {
	parts := make([]string, len(b))
	for i, o := range b {
		parts[i] = strconv.Itoa(int(o))
	}
	return strings.Join(parts, ".")
}

// formatIPv6 renders all eight groups in lowercase hex, without zero
// compression, e.g. "2001:db8:0:0:0:0:0:1".
func formatIPv6(b []byte) string {
	groups := make([]string, 0, 8)
	for i := 0; i+1 < len(b); i += 2 {
		groups = append(groups, strconv.FormatUint(uint64(binary.BigEndian.Uint16(b[i:])), 16))
	}
	return strings.Join(groups, ":")
}

func (c *Credentials) match(uname, passwd []byte) bool {
	u := subtle.ConstantTimeCompare(uname, []byte(c.Username))
	p := subtle.ConstantTimeCompare(passwd, []byte(c.Password))
	return u&p == 1
}

// replyErr attaches a failed reply write to the validation error it was reporting.
func replyErr(writeErr, err error) error {
	if writeErr != nil {
		return errors.Join(err, writeErr)
	}
	return err
}
