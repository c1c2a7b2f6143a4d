// Package kafka 提供领域事件发布
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrProducerClosed 发布器已关闭
var ErrProducerClosed = errors.New("kafka producer closed")

// Event 领域事件
type Event struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event *Event) error
}

// Config 发布器配置
type Config struct {
	Brokers      []string
	WriteTimeout time.Duration
}

// Producer 基于 kafka-go Writer 的事件发布器
type Producer struct {
	writer *kafka.Writer
	log    *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewProducer 创建发布器，topic 在每条消息上指定
func NewProducer(cfg *Config, log *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  3,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Warn(fmt.Sprintf(msg, args...), zap.String("component", "kafka"))
		}),
	}

	return &Producer{writer: writer, log: log}, nil
}

// Publish 发布事件，同一 key 的事件进入同一分区以保证顺序
func (p *Producer) Publish(ctx context.Context, topic, key string, event *Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	p.log.Debug("event published", zap.String("topic", topic), zap.String("key", key), zap.String("type", event.Type))
	return nil
}

// Close 关闭发布器
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

// NopPublisher 未启用 Kafka 时使用，只丢弃事件
type NopPublisher struct{}

// Publish 丢弃事件
func (NopPublisher) Publish(context.Context, string, string, *Event) error {
	return nil
}

// MemoryPublisher 内存发布器（用于测试）
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

// Published 已发布事件
type Published struct {
	Topic string
	Key   string
	Event *Event
}

// Publish 记录事件
func (p *MemoryPublisher) Publish(_ context.Context, topic, key string, event *Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, Published{Topic: topic, Key: key, Event: event})
	return nil
}

// Events 返回已发布事件
func (p *MemoryPublisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.events))
	copy(out, p.events)
	return out
}
