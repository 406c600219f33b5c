package qgo

import "sync/atomic"

// Producer publishes messages into the queue fabric. The in-memory
// implementation fails a send only after Close; the promise still runs with
// the enqueue outcome so callers stay transport agnostic.
type Producer interface {
	// DefaultTopic is the topic used when the destination info names none.
	DefaultTopic() string
	// Send enqueues msg to the destination topic and runs the promise, if
	// any, with the outcome.
	Send(tpi TopicPartitionInfo, msg *Message, promise func(*Message, error))
	// Close releases the producer. Sends after Close fail their promise with
	// ErrProducerClosed.
	Close()
}

func noPromise(*Message, error) {}

type memProducer struct {
	r      *TopicRegistry
	topic  string
	closed int32
}

// Producer returns a producer whose default destination is topic.
func (r *TopicRegistry) Producer(topic string) Producer {
	return &memProducer{r: r, topic: topic}
}

func (p *memProducer) DefaultTopic() string { return p.topic }

func (p *memProducer) Send(tpi TopicPartitionInfo, msg *Message, promise func(*Message, error)) {
	if promise == nil {
		promise = noPromise
	}
	if atomic.LoadInt32(&p.closed) == 1 {
		promise(msg, ErrProducerClosed)
		return
	}
	topic := tpi.Topic
	if topic == "" {
		topic = p.topic
	}
	p.r.queue(topic).push(msg)
	p.r.cfg.hooks.each(func(h Hook) {
		if h, ok := h.(HookProduce); ok {
			h.OnProduce(topic)
		}
	})
	promise(msg, nil)
}

func (p *memProducer) Close() { atomic.StoreInt32(&p.closed, 1) }
