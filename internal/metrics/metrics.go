package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DirectionUpstream   = "upstream"
	DirectionDownstream = "downstream"
)

var (
	// ConnectGauge is the current number of active SOCKS5 connections.
	ConnectGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "connect_gauge",
		Help: "Current number of active SOCKS5 connections",
	}, []string{"host"})

	// ConnectCounter is the total number of SOCKS5 connections.
	ConnectCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connect_counter",
		Help: "Total number of SOCKS5 connections",
	}, []string{"host"})

	// HandshakeFailures counts sessions that ended during negotiation, by the
	// state they failed in.
	HandshakeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handshake_failures_total",
		Help: "SOCKS5 handshakes that ended before the tunnel was set up",
	}, []string{"state"})

	// DialFailures counts CONNECT targets that could not be reached.
	DialFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dial_failures_total",
		Help: "Outbound connections that could not be established",
	})

	// RelayBytes counts tunnelled bytes.
	RelayBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_bytes_total",
		Help: "Bytes relayed through established tunnels",
	}, []string{"direction"})
)

func init() {
	// Register the metrics.
	prometheus.MustRegister(ConnectGauge, ConnectCounter, HandshakeFailures, DialFailures, RelayBytes)
}

func StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	return server.ListenAndServe()
}
