package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Broker is an in-process transport used by the run command and tests. It
// preserves per-topic FIFO order and supports explicit redelivery, which is
// enough to exercise at-least-once semantics without a real queue.
type Broker struct {
	mu      sync.Mutex
	pending []Message
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{}
}

// Publish appends a message to the pending queue.
func (b *Broker) Publish(ctx context.Context, topic Topic, payload any) error {
	raw, err := Marshal(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.pending = append(b.pending, Message{Topic: topic, Body: raw, ReceiveCount: 1})
	b.mu.Unlock()
	return nil
}

// Redeliver re-injects a raw message, bumping its receive count. Tests use
// it to simulate duplicate delivery.
func (b *Broker) Redeliver(msg Message) {
	msg.ReceiveCount++
	b.mu.Lock()
	b.pending = append(b.pending, msg)
	b.mu.Unlock()
}

// Len reports the number of pending messages.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Broker) pop() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return Message{}, false
	}
	msg := b.pending[0]
	b.pending = b.pending[1:]
	return msg, true
}

// Router maps a topic to its handler.
type Router func(topic Topic) (Handler, bool)

// Drain processes pending messages sequentially until the broker is empty
// or the context is cancelled. Failed messages are redelivered up to
// maxReceive times, then dropped (the in-process stand-in for a dead
// letter path).
func (b *Broker) Drain(ctx context.Context, route Router, maxReceive int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, ok := b.pop()
		if !ok {
			return nil
		}
		h, ok := route(msg.Topic)
		if !ok {
			zap.L().Warn("broker: no handler for topic", zap.String("topic", string(msg.Topic)))
			continue
		}
		if err := h(ctx, msg); err != nil {
			if msg.ReceiveCount >= maxReceive {
				zap.L().Error("broker: message exhausted retries",
					zap.String("topic", string(msg.Topic)),
					zap.Int("receive_count", msg.ReceiveCount),
					zap.Error(err),
				)
				continue
			}
			zap.L().Warn("broker: redelivering failed message",
				zap.String("topic", string(msg.Topic)),
				zap.Error(err),
			)
			b.Redeliver(msg)
		}
	}
}

// Consume implements Consumer for a single topic by polling the pending
// queue; it exists so the worker loop can run against the broker in tests.
func (b *Broker) Consume(ctx context.Context, topic Topic, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.mu.Lock()
		idx := -1
		for i, m := range b.pending {
			if m.Topic == topic {
				idx = i
				break
			}
		}
		var msg Message
		if idx >= 0 {
			msg = b.pending[idx]
			b.pending = append(b.pending[:idx], b.pending[idx+1:]...)
		}
		b.mu.Unlock()
		if idx < 0 {
			return nil
		}
		if err := h(ctx, msg); err != nil {
			b.Redeliver(msg)
		}
	}
}
