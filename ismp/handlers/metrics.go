package handlers

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeSkipped = "skipped"
)

var (
	processedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ismp_handlers_processed_messages",
			Help: "Number of processed messages by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	dispatchedItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ismp_handlers_dispatched_items",
			Help: "Number of batch items handed to the router by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	frozenConsensusClients = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ismp_handlers_frozen_consensus_clients",
			Help: "Number of consensus clients frozen by fraud proofs.",
		},
	)

	handlerCollectors = []prometheus.Collector{
		processedMessages,
		dispatchedItems,
		frozenConsensusClients,
	}

	metricsOnce sync.Once
)

func init() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(handlerCollectors...)
	})
}

func observeItem(kind string, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	dispatchedItems.WithLabelValues(kind, outcome).Inc()
}

func observeSkipped(kind string) {
	dispatchedItems.WithLabelValues(kind, outcomeSkipped).Inc()
}
