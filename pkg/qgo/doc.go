// Package qgo provides the partition assignment and routing fabric for a
// clustered message platform: deterministic entity to partition resolution
// with consistent-hash ownership across live instances, an in-memory topic
// fabric with producer/consumer handles, a request/response template over a
// producer/consumer pair, and an in-process event plane for partition and
// topology changes.
//
// Cluster membership is supplied externally; whenever it changes, the
// discovery layer calls RecalculatePartitions and all peers independently
// converge on the same assignment from the same snapshot.
package qgo
