// Package config loads proxy settings from an env file, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const (
	EnvPort     = "PORT"
	EnvUsername = "PROXY_USERNAME"
	EnvPassword = "PROXY_PASSWORD"

	DefaultPort = 1080
)

type Config struct {
	ListenHost string
	Port       int
	Username   string
	Password   string

	MetricsListen      string
	LogLevel           log.Level
	NegotiationTimeout time.Duration
	DialTimeout        time.Duration
	DNSServer          string
	MaxConns           int
	ReusePort          bool
}

// ListenAddress is the host:port the proxy accepts connections on.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.Port))
}

// Load parses args (without the program name). The env file named by
// --env-file is loaded first and never overrides variables that are already
// set.
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("socks5-proxy", pflag.ContinueOnError)
	flags.SortFlags = false

	envFile := flags.String("env-file", ".env", "Env file with PORT, PROXY_USERNAME and PROXY_PASSWORD. Missing file is ignored.")
	listenHost := flags.String("listen-host", "", "Host or IP to listen on. Empty listens on all interfaces.")
	port := flags.Int("port", 0, "Listen port (default $PORT or 1080)")
	username := flags.String("username", "", "Required username (default $PROXY_USERNAME)")
	password := flags.String("password", "", "Required password (default $PROXY_PASSWORD)")
	metricsListen := flags.String("metrics-listen", ":10081", "Prometheus /metrics listen address. Empty disables.")
	logLevel := flags.String("log-level", "info", "Log level: trace|debug|info|warn|error")
	negotiationTimeout := flags.Duration("negotiation-timeout", 10*time.Second, "Timeout for the whole handshake. 0 disables.")
	dialTimeout := flags.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
	dnsServer := flags.String("dns-server", "", "DNS server (host[:port]) for domain targets. Empty uses the system resolver.")
	maxConns := flags.Int("max-conns", 1000, "Maximum concurrent client connections")
	reusePort := flags.Bool("reuse-port", false, "Set SO_REUSEPORT on the listener")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := loadEnvFile(*envFile); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenHost:         *listenHost,
		Port:               *port,
		Username:           *username,
		Password:           *password,
		MetricsListen:      *metricsListen,
		NegotiationTimeout: *negotiationTimeout,
		DialTimeout:        *dialTimeout,
		DNSServer:          *dnsServer,
		MaxConns:           *maxConns,
		ReusePort:          *reusePort,
	}

	if !flags.Changed("port") {
		p, err := envPort()
		if err != nil {
			return nil, err
		}
		cfg.Port = p
	}
	if !flags.Changed("username") {
		cfg.Username = os.Getenv(EnvUsername)
	}
	if !flags.Changed("password") {
		cfg.Password = os.Getenv(EnvPassword)
	}

	lvl, err := log.ParseLevel(*logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	cfg.LogLevel = lvl

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func envPort() (int, error) {
	v := os.Getenv(EnvPort)
	if v == "" {
		return DefaultPort, nil
	}
	p, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
	}
	return p, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}
	// RFC 1929 carries both fields behind a one-byte length
	if l := len(c.Username); l == 0 || l > 255 {
		return fmt.Errorf("username must be 1-255 bytes (set --username or %s)", EnvUsername)
	}
	if l := len(c.Password); l == 0 || l > 255 {
		return fmt.Errorf("password must be 1-255 bytes (set --password or %s)", EnvPassword)
	}
	if c.MaxConns <= 0 {
		return errors.New("max-conns must be > 0")
	}
	if c.NegotiationTimeout < 0 || c.DialTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}
