package qgo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

// resolveKey caches resolutions per role, tenant scope, and partition. The
// tenant half is uuid.Nil unless the tenant is isolated for the role.
type resolveKey struct {
	t         ServiceType
	tenant    uuid.UUID
	partition int32
}

// assignment is one immutable recomputation result. The partition service
// replaces the whole value per recomputation; readers work against whichever
// value they loaded, old or new, never a mix.
type assignment struct {
	// initial marks the placeholder stored before the first recomputation;
	// no topology event is published when diffing against it.
	initial bool

	// mine holds the partitions the local instance owns, per service key,
	// in ascending order.
	mine map[ServiceKey][]int32

	// isolated maps a tenant to the roles some instance serves exclusively
	// for it. Populated additively from peer advertisements unless an
	// IsolatedTenantSource overrides it.
	isolated map[uuid.UUID]map[ServiceType]bool

	// members holds, per service key, the sorted ids of the instances
	// declaring the key's role within the key's tenant scope. Diffed across
	// recomputations to detect topology changes.
	members map[ServiceKey][]string

	// ids holds, per role, the sorted ids of all instances declaring it,
	// local and peers alike.
	ids map[ServiceType][]string

	// tpis memoizes Resolve results. A fresh map per recomputation is the
	// wholesale cache clear.
	tpis *xsync.Map[resolveKey, TopicPartitionInfo]
}

func newAssignment() *assignment {
	return &assignment{
		mine:     make(map[ServiceKey][]int32),
		isolated: make(map[uuid.UUID]map[ServiceType]bool),
		members:  make(map[ServiceKey][]string),
		ids:      make(map[ServiceType][]string),
		tpis:     xsync.NewMap[resolveKey, TopicPartitionInfo](),
	}
}

func (a *assignment) isolatedFor(tenantID uuid.UUID, t ServiceType) bool {
	return a.isolated[tenantID][t]
}

// PartitionService maps entities to partitions and partitions to owning
// instances, per role and tenant scope. Resolution is deterministic and
// membership independent; ownership is recomputed from membership snapshots
// supplied by the discovery layer.
//
// All read paths are safe under concurrent callers. RecalculatePartitions
// must be serialized by its invoker.
type PartitionService struct {
	cfg      cfg
	provider ServiceInfoProvider
	hub      *EventHub

	current atomic.Pointer[assignment]

	// notification topic infos are stable per instance and survive
	// recomputations, keyed by full topic name.
	notifications *xsync.Map[string, TopicPartitionInfo]
}

// NewPartitionService returns a partition service over the given identity
// provider and event hub. Configuration is validated here: unknown hash
// functions and missing role topics are startup errors. A nil hub gets a
// private one, usable for subscriptions via Hub.
func NewPartitionService(provider ServiceInfoProvider, hub *EventHub, opts ...Opt) (*PartitionService, error) {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, errors.New("nil service info provider")
	}
	if len(c.topics) == 0 {
		return nil, errors.New("no role topics configured")
	}
	for t := range c.partitions {
		if _, ok := c.topics[t]; !ok {
			return nil, fmt.Errorf("partition count configured for %s without a topic", t)
		}
	}
	for t := range c.topics {
		if _, ok := c.partitions[t]; !ok {
			c.partitions[t] = defaultPartitions
		}
	}
	if hub == nil {
		hub = NewEventHub(WithLogger(c.logger))
	}

	s := &PartitionService{
		cfg:           c,
		provider:      provider,
		hub:           hub,
		notifications: xsync.NewMap[string, TopicPartitionInfo](),
	}
	first := newAssignment()
	first.initial = true
	s.current.Store(first)
	return s, nil
}

// Hub returns the event hub partition and topology changes are published to.
func (s *PartitionService) Hub() *EventHub { return s.hub }

// Resolve maps an entity to its partition for a role. The result depends only
// on configuration and the entity id, never on cluster membership; the Owned
// flag of the returned info reflects the current assignment.
func (s *PartitionService) Resolve(t ServiceType, tenantID, entityID uuid.UUID) (TopicPartitionInfo, error) {
	topic, ok := s.cfg.topics[t]
	if !ok {
		return TopicPartitionInfo{}, fmt.Errorf("%w: %s", ErrNoTopicForType, t)
	}
	hash := s.cfg.newHasher().putLong(uuidMSB(entityID)).putLong(uuidLSB(entityID)).asInt32()
	partition := int32(abs64(int64(hash)) % int64(s.cfg.partitions[t]))

	a := s.current.Load()
	scope := uuid.Nil
	if a.isolatedFor(tenantID, t) {
		scope = tenantID
	}
	key := resolveKey{t, scope, partition}
	if tpi, ok := a.tpis.Load(key); ok {
		return tpi, nil
	}
	tpi := TopicPartitionInfo{
		Topic:     topic,
		Partition: partition,
		TenantID:  scope,
		Owned:     containsPartition(a.mine[ServiceKey{Type: t, TenantID: scope}], partition),
	}
	tpi, _ = a.tpis.LoadOrStore(key, tpi)
	return tpi, nil
}

// abs of a 32 bit hash is computed wide, so the minimum value stays positive.
func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func containsPartition(list []int32, p int32) bool {
	for _, have := range list {
		if have == p {
			return true
		}
	}
	return false
}

// RecalculatePartitions rebuilds partition ownership from a fresh membership
// snapshot, current being the local instance and others its peers. Peers
// computing from the same snapshot converge on the same assignment.
//
// The new snapshot is stored before any event is published; partition change
// events are published per changed service key, followed by at most one
// batched topology event. Defects inside recomputation are logged and the
// previous snapshot retained.
func (s *PartitionService) RecalculatePartitions(current ServiceInfo, others []ServiceInfo) {
	defer func() {
		if r := recover(); r != nil {
			s.cfg.logger.Log(LogLevelError, "partition recomputation failed, keeping previous assignment", "panic", r)
		}
	}()

	prev := s.current.Load()
	next := newAssignment()

	if s.cfg.isolatedSource != nil {
		for tenantID, types := range s.cfg.isolatedSource() {
			for _, t := range types {
				markIsolated(next.isolated, tenantID, t)
			}
		}
	} else {
		// Additive across recomputations: a tenant once seen isolated stays
		// isolated until a source override replaces this derivation.
		for tenantID, types := range prev.isolated {
			for t := range types {
				markIsolated(next.isolated, tenantID, t)
			}
		}
	}

	circles := make(map[ServiceKey]*ring[ServiceInfo])
	all := make([]ServiceInfo, 0, 1+len(others))
	all = append(all, current)
	all = append(all, others...)
	for i, info := range all {
		peer := i > 0
		for _, t := range info.Types {
			if !knownServiceType(t) {
				s.cfg.logger.Log(LogLevelWarn, "skipping unknown service type in advertisement",
					"service", info.ID, "type", string(t))
				continue
			}
			key := ServiceKey{Type: t, TenantID: info.TenantID}
			circle := circles[key]
			if circle == nil {
				circle = newRing[ServiceInfo]()
				circles[key] = circle
			}
			for vn := 0; vn < s.cfg.virtualNodes; vn++ {
				h := s.cfg.newHasher().putString(info.ID).putInt(int32(vn)).asInt64()
				circle.add(h, info)
			}
			if peer && info.isolated() && s.cfg.isolatedSource == nil {
				markIsolated(next.isolated, info.TenantID, t)
			}
			next.members[key] = append(next.members[key], info.ID)
			next.ids[t] = append(next.ids[t], info.ID)
		}
	}
	for _, circle := range circles {
		circle.seal()
	}
	for key := range next.members {
		sort.Strings(next.members[key])
	}
	for t := range next.ids {
		sort.Strings(next.ids[t])
	}

	myTenant := current.TenantID
	for t, size := range s.cfg.partitions {
		circle := circles[ServiceKey{Type: t, TenantID: myTenant}]
		if circle == nil || circle.len() == 0 {
			// No live instance serves this role in our scope; the owned set
			// stays empty and resolves report foreign partitions.
			continue
		}
		key := ServiceKey{Type: t, TenantID: myTenant}
		for i := int32(0); i < size; i++ {
			h := s.cfg.newHasher().putInt(i).asInt64()
			if owner, ok := circle.lookup(h); ok && owner.ID == current.ID {
				next.mine[key] = append(next.mine[key], i)
			}
		}
	}

	changed := changedKeys(prev.mine, next.mine)
	topology := changedMembers(prev.members, next.members)

	s.current.Store(next)

	for _, key := range changed {
		owned := next.mine[key]
		ev := PartitionChangeEvent{Key: key, Partitions: s.ownedTPIs(key, owned)}
		s.cfg.logger.Log(LogLevelInfo, "partition assignment changed",
			"key", key.String(), "partitions", len(owned))
		s.hub.publishPartitionChange(ev)
		s.cfg.hooks.each(func(h Hook) {
			if h, ok := h.(HookPartitionsAssigned); ok {
				h.OnPartitionsAssigned(key, owned)
			}
		})
	}

	if !prev.initial && len(topology) > 0 {
		s.hub.publishTopologyChange(ClusterTopologyChangeEvent{Keys: topology})
		s.cfg.hooks.each(func(h Hook) {
			if h, ok := h.(HookTopologyChange); ok {
				h.OnTopologyChange(topology)
			}
		})
	}
}

func markIsolated(isolated map[uuid.UUID]map[ServiceType]bool, tenantID uuid.UUID, t ServiceType) {
	types := isolated[tenantID]
	if types == nil {
		types = make(map[ServiceType]bool)
		isolated[tenantID] = types
	}
	types[t] = true
}

// changedKeys returns every service key whose owned partition list differs
// between the two assignments, including keys present on one side only,
// sorted for stable event order.
func changedKeys(prev, next map[ServiceKey][]int32) []ServiceKey {
	var changed []ServiceKey
	for key, list := range next {
		if !equalInt32s(prev[key], list) {
			changed = append(changed, key)
		}
	}
	for key := range prev {
		if _, ok := next[key]; !ok {
			changed = append(changed, key)
		}
	}
	sortKeys(changed)
	return changed
}

// changedMembers returns every service key whose instance list differs
// between the two snapshots, sorted.
func changedMembers(prev, next map[ServiceKey][]string) []ServiceKey {
	var changed []ServiceKey
	for key, ids := range next {
		if !equalStrings(prev[key], ids) {
			changed = append(changed, key)
		}
	}
	for key := range prev {
		if _, ok := next[key]; !ok {
			changed = append(changed, key)
		}
	}
	sortKeys(changed)
	return changed
}

func sortKeys(keys []ServiceKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}

func equalInt32s(l, r []int32) bool {
	if len(l) != len(r) {
		return false
	}
	for i := range l {
		if l[i] != r[i] {
			return false
		}
	}
	return true
}

func equalStrings(l, r []string) bool {
	if len(l) != len(r) {
		return false
	}
	for i := range l {
		if l[i] != r[i] {
			return false
		}
	}
	return true
}

func (s *PartitionService) ownedTPIs(key ServiceKey, partitions []int32) []TopicPartitionInfo {
	tpis := make([]TopicPartitionInfo, 0, len(partitions))
	for _, p := range partitions {
		tpis = append(tpis, TopicPartitionInfo{
			Topic:     s.cfg.topics[key.Type],
			Partition: p,
			TenantID:  key.TenantID,
			Owned:     true,
		})
	}
	return tpis
}

// CurrentPartitions returns the partitions the local instance currently owns
// for a role, as owned infos. A role with no owned partitions, or an unknown
// role, returns an empty slice.
func (s *PartitionService) CurrentPartitions(t ServiceType) []TopicPartitionInfo {
	if _, ok := s.cfg.topics[t]; !ok {
		return nil
	}
	a := s.current.Load()
	key := ServiceKey{Type: t, TenantID: s.provider.ServiceInfo().TenantID}
	return s.ownedTPIs(key, a.mine[key])
}

// AllServiceIDs returns the ids of every instance, local or peer, declaring
// the role in the current snapshot, sorted.
func (s *PartitionService) AllServiceIDs(t ServiceType) []string {
	a := s.current.Load()
	ids := a.ids[t]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// NotificationsTopic returns the stable per-instance notification channel for
// a role: a partitionless info named <role-lowercase>.notifications.<id>.
// Core and rule engine channels are memoized per service id; other roles are
// built fresh each call.
func (s *PartitionService) NotificationsTopic(t ServiceType, serviceID string) TopicPartitionInfo {
	topic := strings.ToLower(string(t)) + ".notifications." + serviceID
	tpi := TopicPartitionInfo{
		Topic:     topic,
		Partition: -1,
		Owned:     serviceID == s.provider.ServiceInfo().ID,
	}
	if t != ServiceTypeCore && t != ServiceTypeRuleEngine {
		return tpi
	}
	tpi, _ = s.notifications.LoadOrStore(topic, tpi)
	return tpi
}
