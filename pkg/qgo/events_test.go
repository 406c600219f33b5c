package qgo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventHubFanOutInRegistrationOrder(t *testing.T) {
	hub := NewEventHub()

	var order []string
	hub.SubscribePartitionChanges(func(PartitionChangeEvent) { order = append(order, "first") })
	hub.SubscribePartitionChanges(func(PartitionChangeEvent) { order = append(order, "second") })
	hub.SubscribePartitionChanges(func(PartitionChangeEvent) { order = append(order, "third") })

	hub.publishPartitionChange(PartitionChangeEvent{})
	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEventHubSurvivesPanickingSubscriber(t *testing.T) {
	hub := NewEventHub()

	var delivered int
	hub.SubscribeTopologyChanges(func(ClusterTopologyChangeEvent) { panic("broken subscriber") })
	hub.SubscribeTopologyChanges(func(ClusterTopologyChangeEvent) { delivered++ })

	require.NotPanics(t, func() {
		hub.publishTopologyChange(ClusterTopologyChangeEvent{})
	})
	require.Equal(t, 1, delivered)
}

func TestEventHubUnsubscribe(t *testing.T) {
	hub := NewEventHub()

	var partitionEvents, topologyEvents int
	id := hub.SubscribePartitionChanges(func(PartitionChangeEvent) { partitionEvents++ })
	hub.SubscribeTopologyChanges(func(ClusterTopologyChangeEvent) { topologyEvents++ })

	hub.publishPartitionChange(PartitionChangeEvent{})
	hub.Unsubscribe(id)
	hub.publishPartitionChange(PartitionChangeEvent{})
	hub.publishTopologyChange(ClusterTopologyChangeEvent{})

	require.Equal(t, 1, partitionEvents)
	require.Equal(t, 1, topologyEvents)
}
