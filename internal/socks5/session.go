package socks5

import (
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

type State uint8

const (
	StateGreeting State = iota
	StateAuth
	StateRequest
	StateAddress
	StateRelay
)

func (s State) String() string {
	switch s {
	case StateGreeting:
		return "greeting"
	case StateAuth:
		return "auth"
	case StateRequest:
		return "request"
	case StateAddress:
		return "address"
	case StateRelay:
		return "relay"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Session holds the negotiation state of one client connection.
// It must not be shared between goroutines.
type Session struct {
	rw    io.ReadWriter
	creds *Credentials
	id    string
	state State

	// bytes received from the client but not consumed by the parser yet
	buf []byte

	log *log.Entry
}

func NewSession(rw io.ReadWriter, id string, creds *Credentials) *Session {
	return &Session{
		rw:    rw,
		creds: creds,
		id:    id,
		state: StateGreeting,
		log:   log.WithField("client", id),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return s.state }

// Buffered hands over the bytes that arrived after the handshake frames and
// empties the session buffer. The caller owns the returned slice.
func (s *Session) Buffered() []byte {
	b := s.buf
	s.buf = nil
	return b
}

// readN returns exactly n bytes, blocking on the stream until they arrive.
// Anything read past n stays in the buffer for the next step.
func (s *Session) readN(n int) ([]byte, error) {
	for len(s.buf) < n {
		chunk := bufPool512.Get().([]byte)
		m, err := s.rw.Read(chunk)
		s.buf = append(s.buf, chunk[:m]...)
		bufPool512.Put(chunk)

		if err == nil {
			continue
		}
		if len(s.buf) >= n {
			break
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrIncomplete, n, len(s.buf))
		}
		return nil, fmt.Errorf("read from client: %w", err)
	}

	out := s.buf[:n:n]
	s.buf = s.buf[n:]
	return out, nil
}

func (s *Session) write(b []byte) error {
	if _, err := s.rw.Write(b); err != nil {
		return fmt.Errorf("write to client: %w", err)
	}
	return nil
}
