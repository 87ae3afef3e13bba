package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "cartsync"

var (
	consumerLabels = []string{"topic", "consumer_group"}
	producerLabels = []string{"topic"}
)

func counter(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func latency(subsystem, name, help string, labels []string) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, labels)
}

// Consumer metrics, labelled by topic and group.
var (
	consumerReceived  = counter("kafka_consumer", "received_total", "Sync events fetched from the broker.", consumerLabels)
	consumerProcessed = counter("kafka_consumer", "processed_total", "Sync events handled without error.", consumerLabels)
	consumerFailed    = counter("kafka_consumer", "failed_total", "Sync events dropped after decode failure or exhausted retries.", consumerLabels)
	consumerDuration  = latency("kafka_consumer", "handle_seconds", "Time spent in the event handler.", consumerLabels)
)

// Producer metrics, labelled by topic.
var (
	producerPublished = counter("kafka_producer", "published_total", "Sync events written to the broker.", producerLabels)
	producerErrors    = counter("kafka_producer", "errors_total", "Sync events that could not be written.", producerLabels)
	producerDuration  = latency("kafka_producer", "publish_seconds", "Time spent writing one sync event.", producerLabels)
)
