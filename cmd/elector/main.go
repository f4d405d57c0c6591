// Command elector runs one process of the eventually-stable leader
// election service: it loads its peer/variant configuration, starts the
// configured Elector variant, and — only while it believes itself leader —
// runs the health-check/restart loop over its configured targets. Supports
// all four Aguilera et al. variants rather than a single Bully
// implementation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/config"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/docker"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/election"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/healthsrv"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/monitor"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/transport"
)

func main() {
	configPath := flag.String("config", "/etc/elector/config.yaml", "path to the YAML elector configuration")
	logLevel := flag.String("log-level", "info", "logrus level: debug, info, warn, error")
	metricsAddr := flag.String("metrics-addr", ":9100", "address to serve Prometheus /metrics on")
	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.WithError(err).Fatal("invalid --log-level")
	}
	log.SetLevel(level)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed loading configuration")
	}

	tr, err := transport.ListenUDP(cfg.Self.Address())
	if err != nil {
		log.WithError(err).Fatal("failed opening UDP transport")
	}

	registry := prometheus.NewRegistry()
	metrics := election.NewMetrics(registry, string(cfg.Variant), cfg.Self.Address().String())
	observer := election.NewLogObserver(cfg.Self.Host)

	elector, err := election.New(cfg.Variant, election.Config{
		Local:     cfg.Self.Address(),
		Peers:     cfg.PeerAddresses(),
		D:         cfg.Heartbeat,
		AckRatio:  cfg.AckRatio,
		Observer:  observer,
		Transport: tr,
		Metrics:   metrics,
	})
	if err != nil {
		log.WithError(err).Fatal("failed constructing elector")
	}
	if err := elector.Start(); err != nil {
		log.WithError(err).Fatal("failed starting elector")
	}

	dockerClient, err := docker.NewClient()
	if err != nil {
		log.WithError(err).Fatal("failed initializing docker client")
	}
	defer dockerClient.Close()

	hsrv, err := healthsrv.Listen(cfg.HealthPort)
	if err != nil {
		log.WithError(err).Fatal("failed starting health listener")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := hsrv.ServeMetrics(ctx, *metricsAddr, registry); err != nil {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()

	targets := buildTargets(cfg)
	healthChecker := monitor.NewHealthChecker()
	go monitor.Run(ctx, elector, healthChecker, dockerClient, targets, cfg.MonitorInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.WithFields(log.Fields{
		"self":    cfg.Self.Address().String(),
		"variant": cfg.Variant,
		"peers":   len(cfg.Peers),
	}).Info("elector: running")

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("elector: shutting down")
	case ev := <-elector.Events():
		// Observe the first leader-change event on the main goroutine
		// purely to demonstrate the channel is live, then wait for a
		// signal; LogObserver already logs every transition.
		log.WithField("isLeader", ev.IsLeader()).Debug("elector: leader event observed")
		<-sigCh
	}

	cancel()
	_ = hsrv.Close()
	_ = elector.Close()
}

// buildTargets assembles the monitoring target list from every configured
// peer (cross-monitoring coordinators) plus the plain worker names listed
// in the config.
func buildTargets(cfg *config.Config) []monitor.CheckTarget {
	var targets []monitor.CheckTarget
	for _, p := range cfg.Peers {
		if p.Host == cfg.Self.Host && p.Port == cfg.Self.Port {
			continue
		}
		name := p.ContainerName
		if name == "" {
			name = p.Host
		}
		targets = append(targets, monitor.CheckTarget{
			Name:          fmt.Sprintf("coordinator %s", name),
			Host:          name,
			Port:          cfg.HealthPort,
			ContainerName: name,
		})
	}
	for _, w := range cfg.Workers {
		targets = append(targets, monitor.CheckTarget{
			Name:          w,
			Host:          w,
			Port:          cfg.HealthPort,
			ContainerName: w,
		})
	}
	return targets
}
