package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var gateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "replyer_gate_duration_sec",
	Help: "Total duration of moderation gate processing, by verdict",
}, []string{"verdict"})

var gateDecisionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "replyer_gate_decisions",
	Help: "Number of messages gated, by verdict",
}, []string{"verdict"})

var gateErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "replyer_gate_errors",
	Help: "Number of messages dropped because gating failed",
})

var stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "replyer_gate_stage_duration_sec",
	Help: "Duration of individual gate stages",
}, []string{"stage"})

var stageErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "replyer_gate_stage_errors",
	Help: "Number of errors returned by gate stages",
}, []string{"stage"})
