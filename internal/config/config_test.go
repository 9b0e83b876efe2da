package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// unsetenv clears key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	_ = os.Unsetenv(key)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvPort, EnvUsername, EnvPassword} {
		unsetenv(t, k)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvUsername, "user")
	t.Setenv(EnvPassword, "pass")

	cfg, err := Load([]string{"--env-file="})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.Username != "user" || cfg.Password != "pass" {
		t.Errorf("credentials = %q/%q, want user/pass", cfg.Username, cfg.Password)
	}
	if cfg.ListenAddress() != ":1080" {
		t.Errorf("ListenAddress() = %q, want :1080", cfg.ListenAddress())
	}
	if cfg.MetricsListen != ":10081" {
		t.Errorf("MetricsListen = %q, want :10081", cfg.MetricsListen)
	}
	if cfg.LogLevel != log.InfoLevel {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.NegotiationTimeout != 10*time.Second || cfg.DialTimeout != 10*time.Second {
		t.Errorf("timeouts = %v/%v, want 10s/10s", cfg.NegotiationTimeout, cfg.DialTimeout)
	}
	if cfg.MaxConns != 1000 {
		t.Errorf("MaxConns = %d, want 1000", cfg.MaxConns)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "2080")
	t.Setenv(EnvUsername, "user")
	t.Setenv(EnvPassword, "pass")

	cfg, err := Load([]string{
		"--env-file=",
		"--port", "3080",
		"--listen-host", "127.0.0.1",
		"--username", "alice",
		"--password", "secret",
		"--metrics-listen", "",
		"--log-level", "debug",
		"--negotiation-timeout", "0",
		"--dns-server", "1.1.1.1",
		"--max-conns", "5",
		"--reuse-port",
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ListenAddress() != "127.0.0.1:3080" {
		t.Errorf("ListenAddress() = %q", cfg.ListenAddress())
	}
	if cfg.Username != "alice" || cfg.Password != "secret" {
		t.Errorf("credentials = %q/%q, want alice/secret", cfg.Username, cfg.Password)
	}
	if cfg.MetricsListen != "" || cfg.LogLevel != log.DebugLevel || cfg.NegotiationTimeout != 0 {
		t.Errorf("unexpected %+v", cfg)
	}
	if cfg.DNSServer != "1.1.1.1" || cfg.MaxConns != 5 || !cfg.ReusePort {
		t.Errorf("unexpected %+v", cfg)
	}
}

func TestLoadEnvPort(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "2080")
	t.Setenv(EnvUsername, "user")
	t.Setenv(EnvPassword, "pass")

	cfg, err := Load([]string{"--env-file="})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 2080 {
		t.Fatalf("Port = %d, want 2080", cfg.Port)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	// already-set variables win over the file
	t.Setenv(EnvPassword, "from-env")

	path := filepath.Join(t.TempDir(), "proxy.env")
	data := "PORT=4080\nPROXY_USERNAME=fileuser\nPROXY_PASSWORD=filepass\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load([]string{"--env-file", path})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 4080 || cfg.Username != "fileuser" || cfg.Password != "from-env" {
		t.Fatalf("got port=%d user=%q pass=%q", cfg.Port, cfg.Username, cfg.Password)
	}
}

func TestLoadMissingEnvFileIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvUsername, "user")
	t.Setenv(EnvPassword, "pass")

	if _, err := Load([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}); err != nil {
		t.Fatal(err)
	}
}

func TestLoadHelp(t *testing.T) {
	clearEnv(t)

	for _, arg := range []string{"--help", "-h"} {
		if _, err := Load([]string{"--env-file=", arg}); !errors.Is(err, pflag.ErrHelp) {
			t.Errorf("Load(%s) err = %v, want %v", arg, err, pflag.ErrHelp)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		args    []string
		wantErr string
	}{
		{
			name:    "missing_username",
			env:     map[string]string{EnvPassword: "pass"},
			wantErr: "username",
		},
		{
			name:    "missing_password",
			env:     map[string]string{EnvUsername: "user"},
			wantErr: "password",
		},
		{
			name:    "username_too_long",
			args:    []string{"--username", strings.Repeat("u", 256), "--password", "pass"},
			wantErr: "username",
		},
		{
			name:    "bad_env_port",
			env:     map[string]string{EnvPort: "socks", EnvUsername: "user", EnvPassword: "pass"},
			wantErr: EnvPort,
		},
		{
			name:    "port_out_of_range",
			args:    []string{"--port", "70000", "--username", "user", "--password", "pass"},
			wantErr: "port",
		},
		{
			name:    "bad_log_level",
			args:    []string{"--log-level", "loud", "--username", "user", "--password", "pass"},
			wantErr: "log-level",
		},
		{
			name:    "unknown_flag",
			args:    []string{"--bind"},
			wantErr: "bind",
		},
		{
			name:    "zero_max_conns",
			args:    []string{"--max-conns", "0", "--username", "user", "--password", "pass"},
			wantErr: "max-conns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(append([]string{"--env-file="}, tt.args...))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
