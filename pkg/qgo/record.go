package qgo

import (
	"fmt"

	"github.com/google/uuid"
)

// TopicPartitionInfo addresses a resolved destination: a topic, a partition
// within it, and the tenant scope the partition belongs to. Infos are
// immutable once built.
type TopicPartitionInfo struct {
	Topic string

	// Partition is -1 for partitionless topics such as per-instance
	// notification channels.
	Partition int32

	// TenantID is set only when the destination belongs to an isolated
	// tenant; uuid.Nil means the shared scope.
	TenantID uuid.UUID

	// Owned reports whether the local instance owned the partition when the
	// info was built. The flag can go stale across recomputations; consumers
	// rebuild their subscriptions on partition change events rather than
	// trusting old infos.
	Owned bool
}

func (t TopicPartitionInfo) String() string {
	s := t.Topic
	if t.TenantID != uuid.Nil {
		s += "." + t.TenantID.String()
	}
	if t.Partition >= 0 {
		s = fmt.Sprintf("%s-%d", s, t.Partition)
	}
	return s
}

// MessageHeader is one key/value pair attached to a message.
type MessageHeader struct {
	Key   string
	Value []byte
}

// Message is the unit of transfer through the fabric.
type Message struct {
	Key     []byte
	Value   []byte
	Headers []MessageHeader
}

// Header returns the value of the last header with the given key.
func (m *Message) Header(key string) ([]byte, bool) {
	for i := len(m.Headers) - 1; i >= 0; i-- {
		if m.Headers[i].Key == key {
			return m.Headers[i].Value, true
		}
	}
	return nil, false
}

// SetHeader replaces any existing header with the given key.
func (m *Message) SetHeader(key string, value []byte) {
	found := false
	for i := range m.Headers {
		if m.Headers[i].Key == key {
			m.Headers[i].Value = value
			found = true
		}
	}
	if !found {
		m.Headers = append(m.Headers, MessageHeader{Key: key, Value: value})
	}
}
