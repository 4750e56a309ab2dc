package throttle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var throttleBackendErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "replyer_throttle_backend_errors",
	Help: "Number of shared throttle backend failures (acquisition failed open)",
})
