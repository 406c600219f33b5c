package qgo

import "sync"

// PartitionChangeEvent reports that the set of partitions the local instance
// owns changed for one service key. Partitions holds the new owned set; it is
// empty when the instance lost the key entirely.
type PartitionChangeEvent struct {
	Key        ServiceKey
	Partitions []TopicPartitionInfo
}

// ClusterTopologyChangeEvent reports which service keys saw their instance
// lists change during one recomputation. At most one event is published per
// recomputation.
type ClusterTopologyChangeEvent struct {
	Keys []ServiceKey
}

// PartitionChangeHandler receives partition change events.
type PartitionChangeHandler func(PartitionChangeEvent)

// TopologyChangeHandler receives topology change events.
type TopologyChangeHandler func(ClusterTopologyChangeEvent)

// EventHub fans cluster events out to in-process subscribers, synchronously
// with the recomputation that produced them and in registration order.
// Handlers must not call back into the partition service that published the
// event; a panicking handler is logged and the remaining handlers still run.
type EventHub struct {
	logger Logger

	mu            sync.RWMutex
	nextID        int
	partitionSubs []partitionSub
	topologySubs  []topologySub
}

type partitionSub struct {
	id int
	fn PartitionChangeHandler
}

type topologySub struct {
	id int
	fn TopologyChangeHandler
}

// NewEventHub returns a hub ready for subscriptions.
func NewEventHub(opts ...Opt) *EventHub {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	return &EventHub{logger: c.logger}
}

// SubscribePartitionChanges registers a handler for partition change events
// and returns a subscription id usable with Unsubscribe.
func (h *EventHub) SubscribePartitionChanges(fn PartitionChangeHandler) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.partitionSubs = append(h.partitionSubs, partitionSub{h.nextID, fn})
	return h.nextID
}

// SubscribeTopologyChanges registers a handler for topology change events and
// returns a subscription id usable with Unsubscribe.
func (h *EventHub) SubscribeTopologyChanges(fn TopologyChangeHandler) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.topologySubs = append(h.topologySubs, topologySub{h.nextID, fn})
	return h.nextID
}

// Unsubscribe removes the subscription with the given id, if present.
func (h *EventHub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.partitionSubs {
		if s.id == id {
			h.partitionSubs = append(h.partitionSubs[:i:i], h.partitionSubs[i+1:]...)
			return
		}
	}
	for i, s := range h.topologySubs {
		if s.id == id {
			h.topologySubs = append(h.topologySubs[:i:i], h.topologySubs[i+1:]...)
			return
		}
	}
}

func (h *EventHub) publishPartitionChange(ev PartitionChangeEvent) {
	h.mu.RLock()
	subs := h.partitionSubs
	h.mu.RUnlock()
	for _, s := range subs {
		h.deliver(func() { s.fn(ev) })
	}
}

func (h *EventHub) publishTopologyChange(ev ClusterTopologyChangeEvent) {
	h.mu.RLock()
	subs := h.topologySubs
	h.mu.RUnlock()
	for _, s := range subs {
		h.deliver(func() { s.fn(ev) })
	}
}

func (h *EventHub) deliver(invoke func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Log(LogLevelError, "event subscriber panicked", "panic", r)
		}
	}()
	invoke()
}
