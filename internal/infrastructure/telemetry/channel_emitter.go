// Package telemetry provides partition-event sinks: an in-process channel
// sink and an optional Kafka sink. Both satisfy gossip.Emitter and never
// block the evaluator; a full sink drops the event and counts the loss.
package telemetry

import (
	"sync/atomic"

	"github.com/octoreflex/octoreflex/internal/gossip"
	"github.com/octoreflex/octoreflex/internal/infrastructure/monitoring"
)

// ChannelEmitter delivers partition events to an in-process consumer over a
// bounded channel.
type ChannelEmitter struct {
	ch      chan gossip.PartitionEvent
	dropped atomic.Uint64
	metrics *monitoring.Metrics
}

// NewChannelEmitter creates a channel sink with the given buffer capacity.
func NewChannelEmitter(buffer int, metrics *monitoring.Metrics) *ChannelEmitter {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelEmitter{
		ch:      make(chan gossip.PartitionEvent, buffer),
		metrics: metrics,
	}
}

// Emit enqueues the event without blocking. When the buffer is full the
// event is dropped and counted.
func (e *ChannelEmitter) Emit(event gossip.PartitionEvent) {
	select {
	case e.ch <- event:
	default:
		e.dropped.Add(1)
		e.metrics.RecordPartitionEventDropped()
	}
}

// Events returns the consumer side of the sink.
func (e *ChannelEmitter) Events() <-chan gossip.PartitionEvent {
	return e.ch
}

// Dropped returns the number of events lost to a full buffer.
func (e *ChannelEmitter) Dropped() uint64 {
	return e.dropped.Load()
}
