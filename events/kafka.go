package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaPublisher sends events to Kafka through an async producer. Each event
// goes to its own topic, named prefix.event.
type KafkaPublisher struct {
	producer    sarama.AsyncProducer
	topicPrefix string
	logger      *zap.Logger
	done        chan struct{}

	// mu keeps Close from closing the producer input under a pending send.
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func NewKafkaPublisher(brokers []string, topicPrefix string, logger *zap.Logger) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 100 * time.Millisecond
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.Info("kafka publisher initialized", zap.Strings("brokers", brokers), zap.String("topic_prefix", topicPrefix))
	return NewKafkaPublisherWithProducer(producer, topicPrefix, logger), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.AsyncProducer, topicPrefix string, logger *zap.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		producer:    producer,
		topicPrefix: topicPrefix,
		logger:      logger,
		done:        make(chan struct{}),
	}
	go p.handleErrors()
	return p
}

func (p *KafkaPublisher) Publish(_ context.Context, name string, payload any) {
	body, err := json.Marshal(message{Event: name, OccurredAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		p.logger.Error("failed to encode event", zap.String("event", name), zap.Error(err))
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Debug("dropping event after close", zap.String("event", name))
		return
	}

	select {
	case p.producer.Input() <- &sarama.ProducerMessage{Topic: p.TopicName(name), Value: sarama.ByteEncoder(body)}:
	case <-p.done:
	}
}

func (p *KafkaPublisher) TopicName(event string) string {
	if p.topicPrefix == "" {
		return event
	}
	return p.topicPrefix + "." + event
}

// Close stops the publisher. Events published afterwards are dropped.
func (p *KafkaPublisher) Close() error {
	var err error
	p.once.Do(func() {
		// Unblock sends waiting on a full input before taking the write lock.
		close(p.done)
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		if cerr := p.producer.Close(); cerr != nil {
			err = fmt.Errorf("close kafka producer: %w", cerr)
		}
	})
	return err
}

func (p *KafkaPublisher) handleErrors() {
	for {
		select {
		case err, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			p.logger.Error("kafka publish failed", zap.Error(err.Err), zap.String("topic", err.Msg.Topic))
		case <-p.done:
			return
		}
	}
}

type message struct {
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}
