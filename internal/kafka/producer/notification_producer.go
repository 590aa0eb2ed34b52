package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/kafka"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// NotificationMessage сообщение для сервиса уведомлений
type NotificationMessage struct {
	UserID    uuid.UUID         `json:"userId"`
	Type      string            `json:"type"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NotificationProducer публикует уведомления в Kafka
type NotificationProducer struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewNotificationProducer создает новый продюсер уведомлений
func NewNotificationProducer(cfg kafka.Config, log *logger.Logger) (*NotificationProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafka.NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	log.Infow("Kafka producer connected", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &NotificationProducer{producer: producer, topic: cfg.Topic, log: log}, nil
}

// Send публикует уведомление пользователю.
// Ключ сообщения — userId, чтобы уведомления одного пользователя
// попадали в одну партицию и сохраняли порядок.
func (p *NotificationProducer) Send(ctx context.Context, userID uuid.UUID, notificationType string, payload map[string]string) error {
	msg := NotificationMessage{
		UserID:    userID,
		Type:      notificationType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(userID.String()),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		p.log.Errorw("Failed to send notification", "userId", userID, "type", notificationType, "error", err)
		return fmt.Errorf("send notification: %w", err)
	}

	p.log.Debugw("Notification sent",
		"userId", userID, "type", notificationType,
		"partition", partition, "offset", offset)
	return nil
}

// Close закрывает продюсер
func (p *NotificationProducer) Close() error {
	return p.producer.Close()
}
