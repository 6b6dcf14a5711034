package kernel

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/antigravity/trafficsim/internal/events"
)

var (
	stepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trafficsim_step_duration_seconds",
		Help:    "Wall-clock time spent advancing one simulation tick.",
		Buckets: prometheus.DefBuckets,
	})

	activeAgents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trafficsim_active_agents",
		Help: "Vehicles and pedestrians currently moving in the world.",
	})

	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficsim_events_total",
		Help: "Events emitted by kernel steps, by kind.",
	}, []string{"kind"})

	orphanedTripsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trafficsim_orphaned_trips_total",
		Help: "Trips abandoned because their spawn command found no path or spot.",
	})

	simTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trafficsim_time_ticks",
		Help: "Current simulation time in ticks.",
	})
)

func init() {
	prometheus.MustRegister(stepDuration, activeAgents, eventsTotal, orphanedTripsTotal, simTime)
}

func timeNow() time.Time { return time.Now() }

func (s *Sim) observeStep(started time.Time) {
	stepDuration.Observe(time.Since(started).Seconds())
	activeAgents.Set(float64(len(s.driving.ActiveCars()) + len(s.walking.ActivePeds())))
	simTime.Set(float64(s.now))
	if delta := s.spawner.OrphanedTrips() - s.seenOrphans; delta > 0 {
		orphanedTripsTotal.Add(float64(delta))
		s.seenOrphans += delta
	}
}

func (s *Sim) recordEvents(out []events.Event) {
	for _, e := range out {
		eventsTotal.WithLabelValues(e.Kind.String()).Inc()
	}
}
