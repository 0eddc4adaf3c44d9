package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Топики событий жизненного цикла подписки
const (
	TopicSubscriptionCreated   = "subscription_created"
	TopicSubscriptionCancelled = "subscription_cancelled"
	TopicSubscriptionUpdated   = "subscription_updated"
)

// Producer определяет интерфейс для публикации событий подписок.
type Producer interface {
	// PublishSubscriptionEvent отправляет событие, связанное с подпиской.
	// Ключ сообщения (Key) используется Kafka для партиционирования.
	PublishSubscriptionEvent(ctx context.Context, topic string, subscription *domain.Subscription) error
	// Close закрывает соединение продюсера Kafka.
	Close() error
}

// kafkaProducer реализует интерфейс Producer, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	// RequireOne: ждем подтверждения только от лидера партиции
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers)

	return &kafkaProducer{
		writer: writer,
		log:    log,
	}, nil
}

// PublishSubscriptionEvent преобразует подписку в JSON и отправляет в указанный топик.
func (k *kafkaProducer) PublishSubscriptionEvent(ctx context.Context, topic string, subscription *domain.Subscription) error {
	// Ключ - внешний ID подписки. Все события одной подписки попадают
	// в одну партицию, порядок обработки для нее сохраняется.
	messageKey := []byte(subscription.StripeSubscriptionID)

	messageValue, err := json.Marshal(subscription)
	if err != nil {
		k.log.Errorw("Failed to marshal subscription data to JSON for Kafka", "error", err, "stripeSubscriptionID", subscription.StripeSubscriptionID, "topic", topic)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   messageKey,
		Value: messageValue,
		Time:  time.Now(),
	}

	// Контекст с таймаутом, чтобы не зависнуть при недоступном брокере
	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	err = k.writer.WriteMessages(writeCtx, message)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", topic, "stripeSubscriptionID", subscription.StripeSubscriptionID)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "stripeSubscriptionID", subscription.StripeSubscriptionID)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Infow("Successfully published message to Kafka", "topic", topic, "stripeSubscriptionID", subscription.StripeSubscriptionID)
	return nil
}

// Close закрывает Kafka Writer. Вызывается при graceful shutdown.
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer writer...")
	err := k.writer.Close()
	if err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	k.log.Infow("Kafka producer writer closed successfully")
	return nil
}
