package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the subset of *kafka.Reader the worker consumes from.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// MessageWriter is the subset of *kafka.Writer used to park undeliverable tasks.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Worker consumes email tasks and delivers them. Messages are committed only after
// delivery succeeds, the task is dropped as malformed, or it is parked on the dead-letter topic,
// so a crash mid-delivery re-delivers the task.
type Worker struct {
	reader      MessageReader
	sender      Sender
	logger      *zap.Logger
	maxTries    uint
	deadLetters MessageWriter
	newBackOff  func() backoff.BackOff

	// fetchBackOff paces FetchMessage after consecutive read errors.
	fetchBackOff func() backoff.BackOff
}

// NewWorker returns a Worker that retries each delivery up to maxTries times with exponential backoff.
func NewWorker(reader MessageReader, sender Sender, logger *zap.Logger, maxTries uint) *Worker {
	if maxTries == 0 {
		maxTries = 5
	}
	return &Worker{
		reader:   reader,
		sender:   sender,
		logger:   logger,
		maxTries: maxTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			return b
		},
		fetchBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
}

// WithDeadLetters parks tasks whose delivery retries are exhausted on w before their offset is committed.
// Without it such tasks are logged and dropped.
func (w *Worker) WithDeadLetters(dlq MessageWriter) *Worker {
	w.deadLetters = dlq
	return w
}

// Run processes messages until ctx is cancelled. Consecutive read errors back off exponentially.
func (w *Worker) Run(ctx context.Context) error {
	var pause backoff.BackOff
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if pause == nil {
				pause = w.fetchBackOff()
			}
			wait := pause.NextBackOff()
			w.logger.Warn("mailer: kafka fetch failed", zap.Error(err), zap.Duration("retry_in", wait))
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}
		pause = nil
		if err := w.Handle(ctx, msg); err != nil {
			// Shutdown interrupted delivery or dead-lettering; leave the offset for redelivery.
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("mailer: leaving task uncommitted", zap.Error(err), zap.Int64("offset", msg.Offset))
			continue
		}
		if err := w.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			w.logger.Warn("mailer: commit failed", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}

// Handle decodes and delivers one message. Undecodable or invalid tasks are dropped with an error log;
// delivery failures are retried with backoff, then parked on the dead-letter topic.
// A nil return means the offset may be committed.
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) error {
	var task Task
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		w.logger.Error("mailer: dropping undecodable task", zap.Error(err), zap.Int64("offset", msg.Offset))
		return nil
	}
	m, err := Render(task)
	if err != nil {
		w.logger.Error("mailer: dropping invalid task", zap.Error(err), zap.String("task_id", task.ID))
		return nil
	}
	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, w.sender.Send(ctx, m)
	}, backoff.WithBackOff(w.newBackOff()), backoff.WithMaxTries(w.maxTries))
	if err == nil {
		w.logger.Info("mailer: delivered",
			zap.String("task_id", task.ID), zap.String("kind", string(task.Kind)), zap.Int("attempts", attempt))
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	fields := []zap.Field{zap.Error(err), zap.String("task_id", task.ID), zap.String("kind", string(task.Kind)), zap.Int("attempts", attempt)}
	if w.deadLetters == nil {
		w.logger.Error("mailer: delivery failed, dropping task", fields...)
		return nil
	}
	if dlqErr := w.deadLetter(ctx, msg, err); dlqErr != nil {
		w.logger.Error("mailer: delivery failed and dead-letter write failed", append(fields, zap.NamedError("dlq_error", dlqErr))...)
		return dlqErr
	}
	w.logger.Error("mailer: delivery failed, task dead-lettered", fields...)
	return nil
}

// deadLetter republishes msg unchanged with its origin and the final delivery error as headers.
// Writes are retried until they succeed or ctx ends.
func (w *Worker) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	parked := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "dlq_source_topic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "dlq_source_partition", Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: "dlq_source_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: "dlq_error", Value: []byte(cause.Error())},
		),
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, w.deadLetters.WriteMessages(ctx, parked)
	}, backoff.WithBackOff(w.fetchBackOff()), backoff.WithMaxElapsedTime(0))
	return err
}

// sleep waits for d or until ctx ends, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
