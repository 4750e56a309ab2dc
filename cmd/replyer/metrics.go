package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var updatesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "replyer_updates_received",
	Help: "Number of updates received from the Bot API, by receive mode",
}, []string{"mode"})

var pollErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "replyer_poll_errors",
	Help: "Number of failed getUpdates calls",
})

var webhookRejected = promauto.NewCounter(prometheus.CounterOpts{
	Name: "replyer_webhook_rejected",
	Help: "Number of webhook requests rejected for a bad secret token",
})
