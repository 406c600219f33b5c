package qgo

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	hashiuuid "github.com/hashicorp/go-uuid"
)

// ServiceType is a role a service instance can declare. Core and rule engine
// participate in partition ownership; transport participates in discovery and
// notification addressing only.
type ServiceType string

const (
	ServiceTypeCore       ServiceType = "TB_CORE"
	ServiceTypeRuleEngine ServiceType = "TB_RULE_ENGINE"
	ServiceTypeTransport  ServiceType = "TB_TRANSPORT"
)

// knownServiceType reports whether t is a role this fabric recognizes. Peers
// running newer versions may advertise roles we do not know; those are
// skipped per role, never fatal.
func knownServiceType(t ServiceType) bool {
	switch t {
	case ServiceTypeCore, ServiceTypeRuleEngine, ServiceTypeTransport:
		return true
	}
	return false
}

// ServiceInfo describes one live service instance as advertised by the
// discovery layer. The record is immutable.
type ServiceInfo struct {
	// ID uniquely identifies the instance within the cluster.
	ID string
	// Types are the roles the instance serves.
	Types []ServiceType
	// TenantID is uuid.Nil for shared (system) instances, or the single
	// tenant an isolated instance is dedicated to.
	TenantID uuid.UUID
}

func (s ServiceInfo) isolated() bool { return s.TenantID != uuid.Nil }

// ServiceKey is the unit of partition assignment: one role within one tenant
// scope. The shared scope is uuid.Nil.
type ServiceKey struct {
	Type     ServiceType
	TenantID uuid.UUID
}

func (k ServiceKey) String() string {
	if k.TenantID == uuid.Nil {
		return string(k.Type)
	}
	return string(k.Type) + "/" + k.TenantID.String()
}

// ServiceInfoProvider supplies the local instance's identity. It is read-only
// from the fabric's perspective.
type ServiceInfoProvider interface {
	ServiceInfo() ServiceInfo
}

type staticServiceInfoProvider struct{ info ServiceInfo }

func (p staticServiceInfoProvider) ServiceInfo() ServiceInfo { return p.info }

// NewStaticServiceInfoProvider returns a provider over a fixed ServiceInfo.
// An empty id gets a generated one.
func NewStaticServiceInfoProvider(id string, tenantID uuid.UUID, types ...ServiceType) (ServiceInfoProvider, error) {
	if id == "" {
		generated, err := hashiuuid.GenerateUUID()
		if err != nil {
			return nil, fmt.Errorf("unable to generate a service id: %w", err)
		}
		id = generated
	}
	return staticServiceInfoProvider{ServiceInfo{ID: id, Types: types, TenantID: tenantID}}, nil
}

// Entity hashing works over the two 64 bit halves of a uuid, most significant
// half first.
func uuidMSB(u uuid.UUID) int64 { return int64(binary.BigEndian.Uint64(u[:8])) }
func uuidLSB(u uuid.UUID) int64 { return int64(binary.BigEndian.Uint64(u[8:])) }
