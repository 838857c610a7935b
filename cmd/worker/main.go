// Worker consumes confirmation email tasks from Kafka and delivers them over SMTP.
// Set KAFKA_BROKERS, EMAIL_KAFKA_TOPIC, EMAIL_DLQ_TOPIC, KAFKA_GROUP_ID, SMTP_HOST and SMTP_FROM (plus SMTP credentials if the relay needs them).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mohamedFouadgebil/socialMedia/internal/config"
	"github.com/mohamedFouadgebil/socialMedia/internal/logger"
	"github.com/mohamedFouadgebil/socialMedia/internal/mailer"
)

// maxDeliveryTries bounds SMTP attempts per task before it is dead-lettered.
const maxDeliveryTries = 6

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	sender, err := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		log.Fatal("worker: smtp", zap.Error(err))
	}

	topic := cfg.EmailKafkaTopic
	if topic == "" {
		topic = "social-email"
	}
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = "social-email-worker"
	}

	// Offsets are committed explicitly after each task is handled.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  1 * time.Second,
	})
	defer reader.Close()

	dlqTopic := cfg.EmailDeadLetterTopic
	if dlqTopic == "" {
		dlqTopic = "social-email-dlq"
	}
	deadLetters := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        dlqTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	defer deadLetters.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker: consuming email tasks",
		zap.String("topic", topic), zap.String("group", groupID),
		zap.String("dead_letter_topic", dlqTopic), zap.String("smtp_host", cfg.SMTPHost))
	worker := mailer.NewWorker(reader, sender, log, maxDeliveryTries).WithDeadLetters(deadLetters)
	if err := worker.Run(ctx); err != nil {
		log.Error("worker: stopped with error", zap.Error(err))
		return
	}
	log.Info("worker: stopped")
}
