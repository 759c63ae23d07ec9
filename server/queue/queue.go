// Package queue moves match requests and outcomes between workers over
// Cloud Pub/Sub, encoded with MessagePack.
package queue

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Handler processes one delivery. A nil error acks it; anything else nacks
// it for redelivery.
type Handler func(ctx context.Context, data []byte) error

type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

type Subscriber interface {
	Receive(ctx context.Context, subscription string, h Handler) error
}

type Bus interface {
	Publisher
	Subscriber
}

var (
	_ Bus = (*Client)(nil)
	_ Bus = (*Memory)(nil)
)

type Client struct {
	client *pubsub.Client
	log    *zap.Logger
	// MaxOutstanding caps concurrent deliveries per Receive. Zero keeps the
	// library default.
	MaxOutstanding int

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func New(ctx context.Context, projectID string, log *zap.Logger) (*Client, error) {
	c, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return &Client{client: c, log: log, topics: make(map[string]*pubsub.Topic)}, nil
}

func (c *Client) topic(id string) *pubsub.Topic {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.topics[id]
	if !ok {
		t = c.client.Topic(id)
		c.topics[id] = t
	}
	return t
}

// Publish encodes v and waits for the server to accept it.
func (c *Client) Publish(ctx context.Context, topic string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	serverID, err := c.topic(topic).Publish(ctx, &pubsub.Message{Data: data}).Get(ctx)
	if err != nil {
		c.log.Error("failed to publish message", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	c.log.Debug("message published", zap.String("topic", topic), zap.String("server_id", serverID))
	return nil
}

// Receive blocks, dispatching deliveries to h until ctx is cancelled.
func (c *Client) Receive(ctx context.Context, subscription string, h Handler) error {
	sub := c.client.Subscription(subscription)
	if c.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.MaxOutstanding
	}
	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		if err := h(ctx, m.Data); err != nil {
			c.log.Warn("message nacked", zap.String("subscription", subscription), zap.String("message_id", m.ID), zap.Error(err))
			m.Nack()
			return
		}
		m.Ack()
	})
}

func (c *Client) Close() error {
	c.mu.Lock()
	for _, t := range c.topics {
		t.Stop()
	}
	c.mu.Unlock()
	return c.client.Close()
}

func Encode(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal: %w", err)
	}
	return data, nil
}

func Decode(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("msgpack unmarshal: %w", err)
	}
	return nil
}
