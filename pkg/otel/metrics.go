// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package otel

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
)

type EngineMetrics struct {
	ProcessesStarted         metric.Int64Counter
	ProcessesEnded           metric.Int64Counter
	ProcessesRunning         metric.Int64UpDownCounter
	VariableEventsDispatched metric.Int64Counter
	SubscriptionsFired       metric.Int64Counter
	TimersTriggered          metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*EngineMetrics, error) {
	var errJoin error

	processesStartedTotal, err := meter.Int64Counter("processes_started", metric.WithDescription("Number of processes started"))
	errJoin = errors.Join(errJoin, err)

	processesCompletedTotal, err := meter.Int64Counter("processes_completed", metric.WithDescription("Number of processes completed"))
	errJoin = errors.Join(errJoin, err)

	processesRunning, err := meter.Int64UpDownCounter("processes_running", metric.WithDescription("Number of processes currently running"))
	errJoin = errors.Join(errJoin, err)

	variableEventsDispatched, err := meter.Int64Counter("variable_events_dispatched", metric.WithDescription("Number of variable events dispatched to the conditional evaluator"))
	errJoin = errors.Join(errJoin, err)

	subscriptionsFired, err := meter.Int64Counter("subscriptions_fired", metric.WithDescription("Number of event subscriptions fired"))
	errJoin = errors.Join(errJoin, err)

	timersTriggered, err := meter.Int64Counter("timers_triggered", metric.WithDescription("Number of timers triggered"))
	errJoin = errors.Join(errJoin, err)

	metrics := EngineMetrics{
		ProcessesStarted:         processesStartedTotal,
		ProcessesEnded:           processesCompletedTotal,
		ProcessesRunning:         processesRunning,
		VariableEventsDispatched: variableEventsDispatched,
		SubscriptionsFired:       subscriptionsFired,
		TimersTriggered:          timersTriggered,
	}
	return &metrics, errJoin
}
