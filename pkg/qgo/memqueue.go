package qgo

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// TopicRegistry maps topic names to in-memory queues. Queues are created
// lazily by the first producer or consumer of a topic and shared by all of
// them; a topic's order is the linearized order of successful sends across
// all producers. There is no global lock at steady state.
type TopicRegistry struct {
	cfg    cfg
	queues *xsync.Map[string, *memQueue]
}

// NewTopicRegistry returns an empty registry.
func NewTopicRegistry(opts ...Opt) *TopicRegistry {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	return &TopicRegistry{cfg: c, queues: xsync.NewMap[string, *memQueue]()}
}

func (r *TopicRegistry) queue(topic string) *memQueue {
	if q, ok := r.queues.Load(topic); ok {
		return q
	}
	q, _ := r.queues.LoadOrStore(topic, newMemQueue())
	return q
}

// memQueue is one unbounded fifo queue. Pushers signal the wake channel so a
// waiting poller returns as soon as the first message lands.
type memQueue struct {
	mu   sync.Mutex
	msgs []*Message
	wake chan struct{}
}

func newMemQueue() *memQueue {
	return &memQueue{wake: make(chan struct{}, 1)}
}

func (q *memQueue) push(m *Message) {
	q.mu.Lock()
	q.msgs = append(q.msgs, m)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// take drains everything currently queued.
func (q *memQueue) take() []*Message {
	q.mu.Lock()
	msgs := q.msgs
	q.msgs = nil
	q.mu.Unlock()
	return msgs
}

// poll returns everything queued, waiting up to timeout for the first message
// when the queue is empty. A wake token can be stale after another poller
// drained the queue, so waiting loops until the deadline.
func (q *memQueue) poll(timeout time.Duration) []*Message {
	if msgs := q.take(); len(msgs) > 0 {
		return msgs
	}
	if timeout <= 0 {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.wake:
			if msgs := q.take(); len(msgs) > 0 {
				return msgs
			}
		case <-timer.C:
			return q.take()
		}
	}
}
