package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deliveryCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "replyer_relay_deliveries",
	Help: "Number of per-administrator delivery attempts, by outcome",
}, []string{"outcome"})

var forwardFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "replyer_relay_undelivered",
	Help: "Number of messages which reached no administrator",
})
