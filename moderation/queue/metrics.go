package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messagesReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "contentcheck_queue_messages_received",
	Help: "Number of submission messages consumed from kafka",
})

var messagesFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "contentcheck_queue_messages_failed",
	Help: "Number of failed attempts at processing a submission message (each is retried)",
})

var messagesSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "contentcheck_queue_messages_skipped",
	Help: "Number of undecodable or invalid submission messages skipped",
})

var verdictsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "contentcheck_queue_verdicts_published",
	Help: "Number of verdict messages published to kafka, by verdict",
}, []string{"verdict"})
