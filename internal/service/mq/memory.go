package mq

import (
	"context"
	"strconv"
	"sync"
)

// MemoryProducer 记录所有发布的消息，CLI 和测试使用
type MemoryProducer struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func NewMemoryProducer() *MemoryProducer {
	return &MemoryProducer{}
}

// FailWith makes subsequent publishes return err.
func (p *MemoryProducer) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *MemoryProducer) Publish(_ context.Context, topic string, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, Message{
		ID:      strconv.Itoa(len(p.messages)),
		Topic:   topic,
		Key:     key,
		Payload: append([]byte(nil), payload...),
	})
	return nil
}

func (p *MemoryProducer) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}
