package monitor

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// LeaderChecker is the subset of election.Elector the monitoring loop
// depends on, kept narrow so this package doesn't need to import
// internal/election.
type LeaderChecker interface {
	IsLeader() bool
}

// Run drives the leader-gated health-check loop: every interval, if elector
// currently believes itself the leader, check every target and restart
// whatever doesn't respond. Run blocks until ctx is cancelled.
func Run(ctx context.Context, elector LeaderChecker, hc *HealthChecker, d restarter, targets []CheckTarget, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !elector.IsLeader() {
				log.Debug("monitor: not leader, skipping health check pass")
				continue
			}
			log.WithField("targets", len(targets)).Debug("monitor: running health check pass as leader")
			CheckOnce(hc, d, targets)
		}
	}
}
