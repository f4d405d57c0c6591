package election

import log "github.com/sirupsen/logrus"

// LogObserver is the default Observer: it logs every leader-change event at
// info level rather than staying silent about coordinator state transitions.
type LogObserver struct {
	log *log.Entry
}

// NewLogObserver builds a LogObserver tagged with the given process name for
// multi-process log correlation in tests and the docker-compose deployment.
func NewLogObserver(name string) *LogObserver {
	return &LogObserver{log: log.WithField("process", name)}
}

func (o *LogObserver) Notify(v View) {
	leaderIdx, ok := v.Leader()
	entry := o.log.WithFields(log.Fields{
		"round":     v.Round(),
		"hasLeader": ok,
		"isLeader":  v.IsLeader(),
	})
	if ok {
		entry = entry.WithField("leader", leaderIdx)
	}
	entry.Info("believed leader changed")
}
