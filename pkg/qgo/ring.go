package qgo

import "sort"

// ring is an ordered mapping from 64 bit hash to node. A recomputation adds
// all entries and then seals the ring; lookups never observe a mutating ring.
// On a hash collision the earlier insertion wins.
type ring[N any] struct {
	keys  []int64
	nodes map[int64]N
}

func newRing[N any]() *ring[N] {
	return &ring[N]{nodes: make(map[int64]N)}
}

func (r *ring[N]) add(h int64, node N) {
	if _, exists := r.nodes[h]; exists {
		return
	}
	r.nodes[h] = node
	r.keys = append(r.keys, h)
}

// seal sorts the keys; the ring must not be added to afterwards.
func (r *ring[N]) seal() {
	sort.Slice(r.keys, func(i, j int) bool { return r.keys[i] < r.keys[j] })
}

// lookup returns the node at the first key at or after h, wrapping around to
// the smallest key, or false for an empty ring.
func (r *ring[N]) lookup(h int64) (N, bool) {
	if len(r.keys) == 0 {
		var none N
		return none, false
	}
	idx := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] >= h })
	if idx == len(r.keys) {
		idx = 0
	}
	return r.nodes[r.keys[idx]], true
}

func (r *ring[N]) len() int { return len(r.keys) }
