package socks5

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.io/kevin-rd/k8s-tools/socks5-proxy/internal/metrics"
)

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	labels := prometheus.Labels{"host": remoteHost(conn)}
	metrics.ConnectGauge.With(labels).Inc()
	metrics.ConnectCounter.With(labels).Inc()
	defer metrics.ConnectGauge.With(labels).Dec()

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	sess := NewSession(conn, conn.RemoteAddr().String(), s.cfg.Credentials)

	// shutdown closes the client until Relay takes over
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}
	target, err := sess.Handshake()
	if err != nil {
		metrics.HandshakeFailures.WithLabelValues(sess.State().String()).Inc()
		if errors.Is(err, ErrIncomplete) || ctx.Err() != nil {
			sess.log.Debugf("client left during %s: %v", sess.State(), err)
		} else {
			sess.log.Warnf("fail in handshake: %v", err)
		}
		return
	}
	_ = conn.SetDeadline(time.Time{})

	sess.log.Infof("CONNECT %s", target)

	dest, err := s.cfg.Dialer.DialContext(ctx, "tcp", target.Address())
	if err != nil {
		metrics.DialFailures.Inc()
		sess.log.Warnf("fail to connect %s: %v", target, err)
		if rerr := sess.Reply(ConnRefused); rerr != nil {
			sess.log.Debugf("fail in reply: %v", rerr)
		}
		return
	}

	if err := sess.Reply(Succeeded); err != nil {
		_ = dest.Close()
		sess.log.Warnf("fail in reply: %v", err)
		return
	}

	if !stop() {
		_ = dest.Close()
		return
	}
	stats, err := Relay(ctx, conn, dest, sess.Buffered())
	if err != nil {
		sess.log.Warnf("relay to %s ended: %v", target, err)
	}
	sess.log.Debugf("transport has completed: %s, up %d bytes, down %d bytes", target, stats.Upstream, stats.Downstream)
}

func remoteHost(conn net.Conn) string {
	if ta, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return ta.IP.String()
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
