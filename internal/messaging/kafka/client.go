// Package kafka connects the protocol to Kafka: committed events are
// produced to a topic and oracle updates are consumed from another.
package kafka

import (
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/overtimeamm/internal/config"
)

// ClientConfig holds broker parameters.
type ClientConfig struct {
	Brokers     []string
	EventsTopic string
	OracleTopic string
	GroupID     string
}

// ConfigFrom maps the application config section.
func ConfigFrom(c config.KafkaConfig) ClientConfig {
	return ClientConfig{
		Brokers:     c.Brokers,
		EventsTopic: c.EventsTopic,
		OracleTopic: c.OracleTopic,
		GroupID:     c.GroupID,
	}
}

// NewWriter creates a writer for one topic.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// NewReader creates a consumer-group reader for one topic.
func NewReader(brokers []string, topic, groupID string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
}
