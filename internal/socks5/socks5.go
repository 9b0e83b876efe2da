package socks5

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.io/kevin-rd/k8s-tools/socks5-proxy/internal/dialer"
)

const defaultMaxConns = 1000

type Config struct {
	Credentials *Credentials
	Dialer      dialer.Dialer

	// NegotiationTimeout bounds the whole handshake; zero disables it.
	NegotiationTimeout time.Duration
	// MaxConns caps concurrent sessions; zero means 1000.
	MaxConns int
	// ReusePort sets SO_REUSEPORT on the listener.
	ReusePort bool
}

type Server struct {
	cfg Config
	wg  sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}
	if cfg.Dialer == nil {
		cfg.Dialer = dialer.New(dialer.Config{})
	}
	return &Server{cfg: cfg}
}

// ListenAndServe listens on address and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	ln, err := Listen(ctx, address, s.cfg.ReusePort)
	if err != nil {
		return err
	}
	log.Infof("Socks5 server start at: %s", ln.Addr())
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and handles each one in its own goroutine.
// When ctx is cancelled the listener is closed, live tunnels are torn down
// and Serve returns once every session has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		log.Info("Close socks5 listener...")
		_ = ln.Close()
	})
	defer stop()
	defer func() { _ = ln.Close() }()

	sem := make(chan struct{}, s.cfg.MaxConns)

	defer func() {
		s.wg.Wait()
		log.Info("Server has gracefully shutdown.")
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Debug("Server has gracefully shutdown from listener status")
				return nil
			}
			log.Warn("fail in accept: ", err)
			continue
		}

		// limit goroutine pool and wait for goroutine to finish
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)

		go func(conn net.Conn) {
			defer func() {
				_ = conn.Close()
				s.wg.Done()
				<-sem
				log.Infof("Connection closed: %v", conn.RemoteAddr())
			}()

			log.Infof("New connection: %v", conn.RemoteAddr())
			s.handle(ctx, conn)
		}(conn)
	}
}
