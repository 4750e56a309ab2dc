package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var updatesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "replyer_updates_handled",
	Help: "Number of inbound updates handled, by route",
}, []string{"route"})

var updateErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "replyer_update_errors",
	Help: "Number of inbound updates which failed, by route",
}, []string{"route"})

var adminCommands = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "replyer_admin_commands",
	Help: "Number of administrator commands executed",
}, []string{"command"})

var inflightUpdates = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "replyer_updates_inflight",
	Help: "Number of updates currently being handled",
})
