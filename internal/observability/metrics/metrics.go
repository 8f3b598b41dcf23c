// Package metrics exposes the Prometheus instruments for message flow,
// model calls, and tool execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InboundMessages counts messages accepted, deduplicated, dropped, or
	// rate limited at ingress, labeled by source transport.
	InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dentalbot",
		Subsystem: "messaging",
		Name:      "inbound_total",
		Help:      "Total inbound messages by source and ingress outcome",
	}, []string{"source", "status"})

	// OutboundMessages counts replies and notifications sent per transport.
	OutboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dentalbot",
		Subsystem: "messaging",
		Name:      "outbound_total",
		Help:      "Total outbound sends by transport and status",
	}, []string{"transport", "status"})

	// LLMCalls counts completion requests after retries resolved.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dentalbot",
		Subsystem: "conversation",
		Name:      "llm_calls_total",
		Help:      "Total model completion calls by final outcome",
	}, []string{"outcome"})

	// ToolExecutions counts dispatched tool calls by tool and result.
	ToolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dentalbot",
		Subsystem: "conversation",
		Name:      "tool_executions_total",
		Help:      "Total tool executions by tool name and status",
	}, []string{"tool", "status"})

	// ProcessLatency tracks end-to-end handling time of one inbound message.
	ProcessLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dentalbot",
		Subsystem: "messaging",
		Name:      "process_latency_seconds",
		Help:      "Latency of full message processing",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})
)
