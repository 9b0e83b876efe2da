package socks5

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.io/kevin-rd/k8s-tools/socks5-proxy/internal/metrics"
)

// RelayStats counts the bytes moved in each direction by Relay.
type RelayStats struct {
	Upstream   int64 // client -> destination, pipelined bytes included
	Downstream int64 // destination -> client
}

// Relay pipes bytes between client and dest until either side ends.
// pending holds client bytes that arrived during the handshake; they are
// written to dest before anything else. Both connections are closed when
// Relay returns.
func Relay(ctx context.Context, client, dest net.Conn, pending []byte) (RelayStats, error) {
	var stats RelayStats

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = client.Close()
			_ = dest.Close()
		})
	}
	defer closeBoth()

	if len(pending) > 0 {
		n, err := dest.Write(pending)
		stats.Upstream += int64(n)
		metrics.RelayBytes.WithLabelValues(metrics.DirectionUpstream).Add(float64(n))
		if err != nil {
			return stats, fmt.Errorf("flush pipelined bytes: %w", err)
		}
	}

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		// either direction finishing tears down the whole tunnel
		defer closeBoth()
		n, err := copyWithCtx(ctx, dest, client)
		stats.Upstream += n
		metrics.RelayBytes.WithLabelValues(metrics.DirectionUpstream).Add(float64(n))
		return copyErr("client -> destination", err)
	})
	g.Go(func() error {
		defer closeBoth()
		n, err := copyWithCtx(ctx, client, dest)
		stats.Downstream = n
		metrics.RelayBytes.WithLabelValues(metrics.DirectionDownstream).Add(float64(n))
		return copyErr("destination -> client", err)
	})

	return stats, g.Wait()
}

// copyErr drops the errors that only mean the other side already closed.
func copyErr(direction string, err error) error {
	if err == nil || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, context.Canceled) {
		if err != nil {
			log.Debugf("copy %s stopped: %v", direction, err)
		}
		return nil
	}
	return fmt.Errorf("copy %s: %w", direction, err)
}
