// Package monitor holds the leader-only health-check loop: once an
// election.Elector believes itself the leader, it alone pings every
// configured target over a tiny PING/PONG TCP protocol and restarts
// whichever containers stop answering.
package monitor

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	pingMessage = "PING"
	pongMessage = "PONG"
	dialTimeout = 2 * time.Second
	readTimeout = 2 * time.Second
)

// HealthChecker verifies the health of TCP endpoints speaking the
// PING/PONG protocol.
type HealthChecker struct{}

// NewHealthChecker creates a new health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// IsAlive checks if a host is responding to health checks.
// Protocol: Connect -> Send "PING" -> Expect "PONG".
func (hc *HealthChecker) IsAlive(host, port string) bool {
	addr := net.JoinHostPort(host, port)

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		log.WithError(err).WithField("target", addr).Debug("monitor: dial failed")
		return false
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		log.WithError(err).WithField("target", addr).Debug("monitor: setting read deadline failed")
		return false
	}

	if _, err := conn.Write([]byte(pingMessage)); err != nil {
		log.WithError(err).WithField("target", addr).Debug("monitor: sending PING failed")
		return false
	}

	buffer := make([]byte, len(pongMessage))
	n, err := conn.Read(buffer)
	if err != nil {
		log.WithError(err).WithField("target", addr).Debug("monitor: reading response failed")
		return false
	}

	if response := string(buffer[:n]); response != pongMessage {
		log.WithFields(log.Fields{"target": addr, "got": response}).Debug("monitor: unexpected response")
		return false
	}

	return true
}

// CheckTarget is one endpoint the leader monitors, and the container to
// restart if it stops responding.
type CheckTarget struct {
	Name          string
	Host          string
	Port          string
	ContainerName string
}

// String renders a CheckTarget for logging.
func (t CheckTarget) String() string {
	return fmt.Sprintf("%s (%s:%s -> container: %s)", t.Name, t.Host, t.Port, t.ContainerName)
}

// restarter is the subset of docker.Client the monitor loop depends on,
// kept as a narrow interface so tests can fake it without a real daemon.
type restarter interface {
	RestartContainer(containerNameOrID string) error
}

// CheckOnce runs a single health-check pass over targets, restarting any
// container that fails to respond. It is the leader-only body of the loop
// driven by Run.
func CheckOnce(hc *HealthChecker, d restarter, targets []CheckTarget) {
	for _, target := range targets {
		if hc.IsAlive(target.Host, target.Port) {
			log.WithField("target", target.Name).Debug("monitor: target healthy")
			continue
		}

		log.WithField("target", target.Name).Warn("monitor: target not responding")
		if err := d.RestartContainer(target.ContainerName); err != nil {
			log.WithError(errors.Wrapf(err, "restarting %s", target.ContainerName)).Error("monitor: restart failed")
			continue
		}
		log.WithField("target", target.Name).Info("monitor: container restarted")
	}
}
