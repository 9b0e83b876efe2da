package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	nested "github.com/antonfisher/nested-logrus-formatter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.io/kevin-rd/k8s-tools/socks5-proxy/internal/config"
	"github.io/kevin-rd/k8s-tools/socks5-proxy/internal/dialer"
	"github.io/kevin-rd/k8s-tools/socks5-proxy/internal/metrics"
	"github.io/kevin-rd/k8s-tools/socks5-proxy/internal/resolver"
	"github.io/kevin-rd/k8s-tools/socks5-proxy/internal/socks5"
)

func init() {
	log.SetFormatter(&nested.Formatter{
		NoColors: false,
	})
	log.SetReportCaller(true)
}

func main() {
	if err := run(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	log.SetLevel(cfg.LogLevel)
	log.Info("Welcome go socks5!")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stopCh)

	go func() {
		count := 0
		for sig := range stopCh {
			count++
			log.Debugf("Receive signal: %v, count: %d", sig, count)

			if count == 1 {
				log.Info("First signal received, initiating graceful shutdown...")
				cancel()
			} else {
				log.Warn("Receive signal again, force exit.")
				os.Exit(1)
			}
		}
	}()

	dialCfg := dialer.Config{DialTimeout: cfg.DialTimeout}
	if cfg.DNSServer != "" {
		r := resolver.New(cfg.DNSServer, cfg.DialTimeout)
		dialCfg.Resolver = r
		log.Infof("Resolving domain targets via %s", r.Server())
	}

	srv := socks5.NewServer(socks5.Config{
		Credentials: &socks5.Credentials{
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Dialer:             dialer.New(dialCfg),
		NegotiationTimeout: cfg.NegotiationTimeout,
		MaxConns:           cfg.MaxConns,
		ReusePort:          cfg.ReusePort,
	})
	log.Infof("Auth user: %q", cfg.Username)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsListen != "" {
		g.Go(func() error {
			log.Infof("Starting metrics server on %s...", cfg.MetricsListen)
			if err := metrics.StartServer(gctx, cfg.MetricsListen); err != nil {
				if errors.Is(err, http.ErrServerClosed) {
					log.Info("Metrics server has gracefully shutdown.")
					return nil
				}
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := srv.ListenAndServe(gctx, cfg.ListenAddress()); err != nil {
			return fmt.Errorf("socks5 server: %w", err)
		}
		// the proxy stopping for any reason takes the metrics server down too
		cancel()
		return nil
	})

	err = g.Wait()
	log.Info("Shutdown done.")
	return err
}
