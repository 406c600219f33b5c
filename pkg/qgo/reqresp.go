package qgo

import (
	"context"
	"fmt"
	"sync"
	"time"

	hashiuuid "github.com/hashicorp/go-uuid"
	"golang.org/x/sync/errgroup"
)

// requestIDHeader carries the correlation id that ties a response back to its
// request. The template stamps it; callers never set it themselves.
const requestIDHeader = "request-id"

// Call is the pending side of a request/response exchange. It completes
// exactly once, with whichever of response arrival, deadline expiry, or
// template shutdown happens first; the losing paths are no-ops.
type Call struct {
	once sync.Once
	done chan struct{}
	resp *Message
	err  error
}

func newCall() *Call { return &Call{done: make(chan struct{})} }

func (c *Call) complete(resp *Message, err error) bool {
	won := false
	c.once.Do(func() {
		c.resp, c.err = resp, err
		close(c.done)
		won = true
	})
	return won
}

// Done is closed when the call completes.
func (c *Call) Done() <-chan struct{} { return c.done }

// Await blocks until the call completes or ctx is done.
func (c *Call) Await(ctx context.Context) (*Message, error) {
	select {
	case <-c.done:
		return c.resp, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type pendingCall struct {
	call     *Call
	deadline time.Time
}

// RequestTemplate correlates responses read from one consumer with requests
// written through one producer. Request and response topics are whatever the
// supplied handles are bound to; callers wire one template per role rather
// than sharing topics across roles.
type RequestTemplate struct {
	cfg      cfg
	producer Producer
	consumer Consumer

	mu      sync.Mutex
	pending map[string]*pendingCall
	stopped bool

	quit chan struct{}
	g    errgroup.Group
}

// NewRequestTemplate wires a producer/consumer pair into a template and
// starts its response poller and expiry tick. Stop releases both.
func NewRequestTemplate(producer Producer, consumer Consumer, opts ...Opt) (*RequestTemplate, error) {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	t := &RequestTemplate{
		cfg:      c,
		producer: producer,
		consumer: consumer,
		pending:  make(map[string]*pendingCall),
		quit:     make(chan struct{}),
	}
	t.g.Go(t.pollResponses)
	t.g.Go(t.expireLoop)
	return t, nil
}

// Send stamps req with a fresh correlation id, records it as pending, and
// enqueues it, returning the call to await. It fails synchronously with
// ErrQueueFull when the pending limit is reached and with ErrTemplateStopped
// after Stop.
func (t *RequestTemplate) Send(req *Message) (*Call, error) {
	id, err := hashiuuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("unable to generate a request id: %w", err)
	}
	req.SetHeader(requestIDHeader, []byte(id))

	call := newCall()
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil, ErrTemplateStopped
	}
	if len(t.pending) >= t.cfg.maxPending {
		pending := len(t.pending)
		t.mu.Unlock()
		t.hookRequestDone(RequestRejected, pending)
		return nil, ErrQueueFull
	}
	t.pending[id] = &pendingCall{call: call, deadline: time.Now().Add(t.cfg.requestTimeout)}
	t.mu.Unlock()

	t.producer.Send(TopicPartitionInfo{}, req, func(_ *Message, err error) {
		if err != nil {
			t.finish(id, nil, err, RequestCanceled)
		}
	})
	return call, nil
}

// finish removes id from pending and completes its call. Removal is
// idempotent; an id already removed is ignored.
func (t *RequestTemplate) finish(id string, resp *Message, err error, outcome RequestOutcome) {
	t.mu.Lock()
	pc, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	pending := len(t.pending)
	t.mu.Unlock()
	if !ok {
		return
	}
	if pc.call.complete(resp, err) {
		t.hookRequestDone(outcome, pending)
	}
}

func (t *RequestTemplate) pollResponses() error {
	for {
		select {
		case <-t.quit:
			return nil
		default:
		}
		for _, msg := range t.consumer.Poll(t.cfg.pollInterval) {
			id, ok := msg.Header(requestIDHeader)
			if !ok {
				t.cfg.logger.Log(LogLevelWarn, "discarding response without a request id",
					"topic", t.consumer.Topic())
				continue
			}
			t.completeResponse(string(id), msg)
		}
	}
}

func (t *RequestTemplate) completeResponse(id string, msg *Message) {
	t.mu.Lock()
	_, known := t.pending[id]
	t.mu.Unlock()
	if !known {
		// Expected after a timeout beat the response; keep it quiet.
		t.cfg.logger.Log(LogLevelDebug, "discarding response for unknown request",
			"request_id", id, "topic", t.consumer.Topic())
		return
	}
	t.finish(id, msg, nil, RequestCompleted)
}

func (t *RequestTemplate) expireLoop() error {
	ticker := time.NewTicker(t.cfg.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.quit:
			return nil
		case now := <-ticker.C:
			t.expire(now)
		}
	}
}

func (t *RequestTemplate) expire(now time.Time) {
	t.mu.Lock()
	var timedOut []*pendingCall
	for id, pc := range t.pending {
		if pc.deadline.Before(now) {
			delete(t.pending, id)
			timedOut = append(timedOut, pc)
		}
	}
	pending := len(t.pending)
	t.mu.Unlock()
	for _, pc := range timedOut {
		if pc.call.complete(nil, ErrRequestTimeout) {
			t.hookRequestDone(RequestTimedOut, pending)
		}
	}
}

// Stop halts the poller and the expiry tick, unsubscribes the response
// consumer, and fails every outstanding call with ErrTemplateStopped.
func (t *RequestTemplate) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	outstanding := t.pending
	t.pending = make(map[string]*pendingCall)
	t.mu.Unlock()

	close(t.quit)
	t.consumer.Unsubscribe()
	t.g.Wait()

	for _, pc := range outstanding {
		if pc.call.complete(nil, ErrTemplateStopped) {
			t.hookRequestDone(RequestCanceled, 0)
		}
	}
}

func (t *RequestTemplate) hookRequestDone(outcome RequestOutcome, pending int) {
	t.cfg.hooks.each(func(h Hook) {
		if h, ok := h.(HookRequestDone); ok {
			h.OnRequestDone(outcome, pending)
		}
	})
}
