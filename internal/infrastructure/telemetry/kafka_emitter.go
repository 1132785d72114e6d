package telemetry

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"github.com/octoreflex/octoreflex/internal/config"
	"github.com/octoreflex/octoreflex/internal/gossip"
	"github.com/octoreflex/octoreflex/internal/infrastructure/monitoring"
	"github.com/octoreflex/octoreflex/pkg/constants"
	"github.com/octoreflex/octoreflex/pkg/logger"
)

// KafkaEmitter publishes partition events to a Kafka topic for alerting.
// Emit itself never blocks: events pass through a bounded buffer consumed by
// a single writer goroutine, and a full buffer drops the event.
type KafkaEmitter struct {
	writer  *kafka.Writer
	buf     chan gossip.PartitionEvent
	dropped atomic.Uint64
	metrics *monitoring.Metrics
	log     logger.Logger
	done    chan struct{}
}

// NewKafkaEmitter creates the sink and starts its writer goroutine.
func NewKafkaEmitter(cfg config.KafkaConfig, buffer int, metrics *monitoring.Metrics, log logger.Logger) *KafkaEmitter {
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}

	e := &KafkaEmitter{
		writer:  writer,
		buf:     make(chan gossip.PartitionEvent, buffer),
		metrics: metrics,
		log:     log.WithComponent(constants.ComponentTelemetry),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit enqueues the event without blocking; a full buffer drops it.
func (e *KafkaEmitter) Emit(event gossip.PartitionEvent) {
	select {
	case e.buf <- event:
	default:
		e.dropped.Add(1)
		e.metrics.RecordPartitionEventDropped()
	}
}

// Dropped returns the number of events lost to a full buffer.
func (e *KafkaEmitter) Dropped() uint64 {
	return e.dropped.Load()
}

// Close stops the writer goroutine and closes the Kafka writer. Events still
// buffered are flushed first.
func (e *KafkaEmitter) Close() error {
	close(e.buf)
	<-e.done
	return e.writer.Close()
}

func (e *KafkaEmitter) run() {
	defer close(e.done)
	ctx := context.Background()

	for event := range e.buf {
		payload, err := json.Marshal(event)
		if err != nil {
			e.log.Error(ctx, "failed to marshal partition event", err)
			continue
		}
		err = e.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(event.ID),
			Value: payload,
		})
		if err != nil {
			// Best-effort telemetry: log and move on, never retry here.
			e.log.Error(ctx, "failed to publish partition event", err, logger.Fields{
				"event_id": event.ID,
			})
		}
	}
}
