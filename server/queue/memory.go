package queue

import (
	"context"
	"sync"
)

// Memory is an in-process Bus. Subscriptions share their topic's name. It
// records every publish and every nacked delivery, and is safe for
// concurrent use.
type Memory struct {
	mu     sync.Mutex
	topics map[string]chan []byte

	Published []Published
	Nacked    [][]byte
}

type Published struct {
	Topic string
	Data  []byte
}

func NewMemory() *Memory {
	return &Memory{topics: make(map[string]chan []byte)}
}

func (m *Memory) ch(topic string) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.topics[topic]
	if !ok {
		c = make(chan []byte, 128)
		m.topics[topic] = c
	}
	return c
}

func (m *Memory) Publish(ctx context.Context, topic string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.Published = append(m.Published, Published{Topic: topic, Data: data})
	m.mu.Unlock()
	select {
	case m.ch(topic) <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive delivers messages to h until ctx is done. Nacked messages are
// recorded rather than redelivered.
func (m *Memory) Receive(ctx context.Context, subscription string, h Handler) error {
	c := m.ch(subscription)
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-c:
			if err := h(ctx, data); err != nil {
				m.mu.Lock()
				m.Nacked = append(m.Nacked, data)
				m.mu.Unlock()
			}
		}
	}
}

// Messages returns a copy of what has been published to topic.
func (m *Memory) Messages(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, p := range m.Published {
		if p.Topic == topic {
			out = append(out, p.Data)
		}
	}
	return out
}

func (m *Memory) NackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Nacked)
}
