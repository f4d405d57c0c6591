package election

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the Prometheus instrumentation surface for an Elector. A nil
// *Metrics is valid everywhere it's used (every method checks for a nil
// receiver), so instrumentation is opt-in.
type Metrics struct {
	round             prometheus.Gauge
	leaderChanges     prometheus.Counter
	messagesDiscarded prometheus.Counter
	oksSent           prometheus.Counter
}

// NewMetrics builds and registers the election_* metrics family against reg.
// variant and local are applied as constant labels so a process running
// several Electors (unusual, but not forbidden) doesn't collide series.
func NewMetrics(reg prometheus.Registerer, variant, local string) *Metrics {
	labels := prometheus.Labels{"variant": variant, "local": local}
	m := &Metrics{
		round: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "election_round",
			Help:        "Current round number believed by this process.",
			ConstLabels: labels,
		}),
		leaderChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "election_leader_changes_total",
			Help:        "Number of times the believed leader changed.",
			ConstLabels: labels,
		}),
		messagesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "election_messages_discarded_total",
			Help:        "Number of incoming messages judged stale by the expiring-links estimator.",
			ConstLabels: labels,
		}),
		oksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "election_ok_sent_total",
			Help:        "Number of Ok heart-beats broadcast by this process as leader.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.round, m.leaderChanges, m.messagesDiscarded, m.oksSent)
	}
	return m
}

func (m *Metrics) setRound(r int) {
	if m == nil {
		return
	}
	m.round.Set(float64(r))
}

func (m *Metrics) incLeaderChange() {
	if m == nil {
		return
	}
	m.leaderChanges.Inc()
}

func (m *Metrics) incDiscarded() {
	if m == nil {
		return
	}
	m.messagesDiscarded.Inc()
}

func (m *Metrics) incOkSent() {
	if m == nil {
		return
	}
	m.oksSent.Inc()
}
