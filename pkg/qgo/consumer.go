package qgo

import (
	"sync/atomic"
	"time"
)

// Consumer reads messages from one topic. Subscription is implicit on
// construction. Commit exists for transports with real offsets; the in-memory
// fabric removes a message from its queue the moment a poll returns it, so
// committing is a no-op here.
type Consumer interface {
	Topic() string
	// Poll returns everything queued, waiting up to timeout for the first
	// message when the queue is empty. It returns nil after Unsubscribe.
	Poll(timeout time.Duration) []*Message
	Commit()
	// Unsubscribe releases the consumer's registry reference.
	Unsubscribe()
}

type memConsumer struct {
	r      *TopicRegistry
	topic  string
	q      *memQueue
	closed int32
}

// Consumer returns a consumer subscribed to topic.
func (r *TopicRegistry) Consumer(topic string) Consumer {
	return &memConsumer{r: r, topic: topic, q: r.queue(topic)}
}

func (c *memConsumer) Topic() string { return c.topic }

func (c *memConsumer) Poll(timeout time.Duration) []*Message {
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil
	}
	msgs := c.q.poll(timeout)
	c.r.cfg.hooks.each(func(h Hook) {
		if h, ok := h.(HookPoll); ok {
			h.OnPoll(c.topic, len(msgs))
		}
	})
	return msgs
}

func (c *memConsumer) Commit() {}

func (c *memConsumer) Unsubscribe() { atomic.StoreInt32(&c.closed, 1) }
