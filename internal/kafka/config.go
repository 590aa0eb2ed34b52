package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

// Config конфигурация подключения к Kafka
type Config struct {
	Brokers []string
	Topic   string
}

// NewSaramaConfig возвращает конфигурацию sarama для синхронного продюсера
func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}
