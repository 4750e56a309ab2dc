package banstate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var banCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "replyer_ban_cache_size",
	Help: "Number of subjects currently cached as banned",
})

var banCacheReconciles = promauto.NewCounter(prometheus.CounterOpts{
	Name: "replyer_ban_cache_reconciles",
	Help: "Number of storage lookups made on ban cache misses",
})

var banCacheBackfills = promauto.NewCounter(prometheus.CounterOpts{
	Name: "replyer_ban_cache_backfills",
	Help: "Number of banned subjects added to the cache from storage",
})
