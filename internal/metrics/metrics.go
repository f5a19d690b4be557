package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TriggerTotal counts trigger firings by slot and outcome
	TriggerTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mitbot_trigger_total",
		Help: "Trigger firings by slot and outcome",
	}, []string{"slot", "outcome"})

	// SendFailures counts outbound messages the transport rejected
	SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mitbot_send_failures_total",
		Help: "Outbound sends that failed, by kind",
	}, []string{"kind"})

	// AnswersTotal counts inbound answers by where they landed
	AnswersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mitbot_answers_total",
		Help: "Inbound answers by outcome",
	}, []string{"outcome"})

	// CommandsTotal counts dispatched commands
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mitbot_commands_total",
		Help: "Commands handled by name",
	}, []string{"command"})
)
