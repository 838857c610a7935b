package mailer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Queue accepts tasks for asynchronous delivery.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue publishes tasks as JSON messages keyed by recipient.
type KafkaQueue struct {
	writer messageWriter
	topic  string
}

// NewKafkaQueue creates a Kafka-backed queue writing to topic. Returns nil when brokers or topic are empty.
// Call Close when shutting down.
func NewKafkaQueue(brokers []string, topic string) *KafkaQueue {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaQueue{writer: writer, topic: topic}
}

// Enqueue serializes t and writes it with a short timeout so a slow broker does not block the request.
func (q *KafkaQueue) Enqueue(ctx context.Context, t Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return q.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(t.To),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "task_id", Value: []byte(t.ID)},
			{Key: "kind", Value: []byte(t.Kind)},
		},
	})
}

// Close closes the Kafka writer. Safe on a nil queue.
func (q *KafkaQueue) Close() error {
	if q == nil || q.writer == nil {
		return nil
	}
	return q.writer.Close()
}

// LogQueue stands in for Kafka when no brokers are configured: it only logs the task.
// With revealCodes set the code is included so a developer can complete confirmation locally.
type LogQueue struct {
	logger      *zap.Logger
	revealCodes bool
}

// NewLogQueue returns a LogQueue. revealCodes must be false in production.
func NewLogQueue(logger *zap.Logger, revealCodes bool) *LogQueue {
	return &LogQueue{logger: logger, revealCodes: revealCodes}
}

// Enqueue logs t.
func (q *LogQueue) Enqueue(ctx context.Context, t Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	fields := []zap.Field{zap.String("task_id", t.ID), zap.String("kind", string(t.Kind)), zap.String("to", t.To)}
	if q.revealCodes {
		fields = append(fields, zap.String("code", t.Code))
	}
	q.logger.Info("mailer: email task not queued (no brokers configured)", fields...)
	return nil
}
