package socks5

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.io/kevin-rd/k8s-tools/socks5-proxy/internal/testutil"
)

type relayResult struct {
	stats RelayStats
	err   error
}

// startRelay wires client <-> proxy <-> dest with in-memory pipes and runs
// Relay between the two proxy ends.
func startRelay(t *testing.T, ctx context.Context, pending []byte) (client, dest net.Conn, done <-chan relayResult) {
	t.Helper()

	client, clientProxy := net.Pipe()
	destProxy, dest := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = dest.Close()
	})

	ch := make(chan relayResult, 1)
	go func() {
		stats, err := Relay(ctx, clientProxy, destProxy, pending)
		ch <- relayResult{stats: stats, err: err}
	}()
	return client, dest, ch
}

func waitRelay(t *testing.T, done <-chan relayResult) relayResult {
	t.Helper()

	select {
	case res := <-done:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not finish")
		return relayResult{}
	}
}

// assertClosed expects c to report end of stream promptly.
func assertClosed(t *testing.T, c net.Conn) {
	t.Helper()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := c.Read(buf); err != io.EOF {
		t.Fatalf("read after peer close: err = %v, want EOF", err)
	}
}

func TestRelayBothDirections(t *testing.T) {
	client, dest, done := startRelay(t, context.Background(), []byte("early "))

	// pipelined bytes come first, in order
	buf := make([]byte, len("early "))
	if _, err := io.ReadFull(dest, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "early " {
		t.Fatalf("dest got %q, want %q", buf, "early ")
	}

	testutil.AssertEcho(t, client, dest, []byte("hello"))
	testutil.AssertEcho(t, dest, client, []byte("world"))

	_ = client.Close()
	res := waitRelay(t, done)
	if res.err != nil {
		t.Fatal(res.err)
	}
	if res.stats.Upstream != int64(len("early hello")) {
		t.Fatalf("upstream = %d, want %d", res.stats.Upstream, len("early hello"))
	}
	if res.stats.Downstream != int64(len("world")) {
		t.Fatalf("downstream = %d, want %d", res.stats.Downstream, len("world"))
	}
}

func TestRelayClientCloseClosesDest(t *testing.T) {
	client, dest, done := startRelay(t, context.Background(), nil)

	testutil.AssertEcho(t, client, dest, []byte("ping"))
	_ = client.Close()

	assertClosed(t, dest)
	waitRelay(t, done)
}

func TestRelayDestCloseClosesClient(t *testing.T) {
	client, dest, done := startRelay(t, context.Background(), nil)

	testutil.AssertEcho(t, dest, client, []byte("pong"))
	_ = dest.Close()

	assertClosed(t, client)
	waitRelay(t, done)
}

func TestRelayContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client, dest, done := startRelay(t, ctx, nil)

	cancel()

	assertClosed(t, client)
	assertClosed(t, dest)
	waitRelay(t, done)
}
