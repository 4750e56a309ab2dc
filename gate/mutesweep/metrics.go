package mutesweep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var mutesCleared = promauto.NewCounter(prometheus.CounterOpts{
	Name: "replyer_mutes_cleared",
	Help: "Number of expired mutes cleared by the sweeper",
})

var sweepErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "replyer_mute_sweep_errors",
	Help: "Number of mute sweeps which failed",
})

var sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "replyer_mute_sweep_duration_sec",
	Help: "Duration of mute sweeps",
})
