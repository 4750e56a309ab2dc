package botapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "replyer_botapi_requests",
	Help: "Number of Bot API calls, by method and outcome",
}, []string{"method", "outcome"})
