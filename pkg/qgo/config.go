package qgo

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultPartitions = 100

// Opt configures the fabric. All constructors share one option set; each
// component reads the fields relevant to it and ignores the rest.
type Opt interface {
	apply(*cfg)
}

type opt struct{ fn func(*cfg) }

func (o opt) apply(c *cfg) { o.fn(c) }

type cfg struct {
	logger Logger
	hooks  hooks

	hashName     string
	newHasher    func() *hasher
	virtualNodes int

	topics     map[ServiceType]string
	partitions map[ServiceType]int32

	isolatedSource func() map[uuid.UUID][]ServiceType

	maxPending     int
	requestTimeout time.Duration
	pollInterval   time.Duration
}

func defaultCfg() cfg {
	return cfg{
		logger: new(nopLogger),

		hashName:     HashMurmur3_128,
		virtualNodes: 16,

		topics:     make(map[ServiceType]string),
		partitions: make(map[ServiceType]int32),

		maxPending:     10000,
		requestTimeout: 10 * time.Second,
		pollInterval:   25 * time.Millisecond,
	}
}

// validate resolves the hash function and checks every numeric knob. Unknown
// hash names fail here, at startup.
func (c *cfg) validate() error {
	newHasher, err := hasherForName(c.hashName)
	if err != nil {
		return err
	}
	c.newHasher = newHasher
	if c.virtualNodes <= 0 {
		return fmt.Errorf("virtual nodes size %d is not positive", c.virtualNodes)
	}
	for t, n := range c.partitions {
		if n <= 0 {
			return fmt.Errorf("partition count %d for %s is not positive", n, t)
		}
	}
	if c.maxPending <= 0 {
		return fmt.Errorf("max pending requests %d is not positive", c.maxPending)
	}
	if c.requestTimeout <= 0 {
		return fmt.Errorf("request timeout %v is not positive", c.requestTimeout)
	}
	if c.pollInterval <= 0 {
		return fmt.Errorf("poll interval %v is not positive", c.pollInterval)
	}
	return nil
}

// WithLogger sets the logger, overriding the default silent logger.
func WithLogger(l Logger) Opt {
	return opt{func(c *cfg) { c.logger = l }}
}

// WithHooks appends hooks. Hooks can be used to layer in metrics.
func WithHooks(hs ...Hook) Opt {
	return opt{func(c *cfg) { c.hooks = append(c.hooks, hs...) }}
}

// RoleTopic sets the logical topic name for a role. A partition service needs
// a topic for every role it resolves.
func RoleTopic(t ServiceType, topic string) Opt {
	return opt{func(c *cfg) { c.topics[t] = topic }}
}

// RolePartitions sets the partition count for a role, overriding the default
// of 100.
func RolePartitions(t ServiceType, n int32) Opt {
	return opt{func(c *cfg) { c.partitions[t] = n }}
}

// HashFunction selects the hash family by name, overriding the default
// murmur3_128. See the Hash constants for accepted names.
func HashFunction(name string) Opt {
	return opt{func(c *cfg) { c.hashName = name }}
}

// VirtualNodes sets how many virtual nodes each instance contributes to each
// ring, overriding the default of 16.
func VirtualNodes(n int) Opt {
	return opt{func(c *cfg) { c.virtualNodes = n }}
}

// IsolatedTenantSource overrides the default behavior of deriving isolated
// tenants from peer advertisements. When set, every recomputation asks the
// source for the authoritative tenant to roles mapping instead, allowing a
// database-backed source to be swapped in.
func IsolatedTenantSource(fn func() map[uuid.UUID][]ServiceType) Opt {
	return opt{func(c *cfg) { c.isolatedSource = fn }}
}

// MaxPendingRequests bounds how many requests a request template keeps
// outstanding, overriding the default of 10000.
func MaxPendingRequests(n int) Opt {
	return opt{func(c *cfg) { c.maxPending = n }}
}

// RequestTimeout sets how long a request template waits for a response before
// failing the call, overriding the default of 10s.
func RequestTimeout(d time.Duration) Opt {
	return opt{func(c *cfg) { c.requestTimeout = d }}
}

// PollInterval sets both the response poll timeout and the expiry tick of a
// request template, overriding the default of 25ms.
func PollInterval(d time.Duration) Opt {
	return opt{func(c *cfg) { c.pollInterval = d }}
}

// Dotted configuration keys readable from the environment. Dots map to
// underscores and the key is upper cased: queue.core.topic is read from
// QUEUE_CORE_TOPIC.
const (
	EnvCoreTopic          = "queue.core.topic"
	EnvCorePartitions     = "queue.core.partitions"
	EnvRuleEngineTopic      = "queue.rule_engine.topic"
	EnvRuleEnginePartitions = "queue.rule_engine.partitions"
	EnvHashFunctionName   = "queue.partitions.hash_function_name"
	EnvVirtualNodesSize   = "queue.partitions.virtual_nodes_size"
	EnvMaxPendingRequests = "queue.requests.max_pending"
	EnvRequestTimeout     = "queue.requests.timeout"
	EnvPollInterval       = "queue.requests.poll_interval"
)

func envKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// OptsFromEnv builds options from the process environment. Unset keys keep
// their defaults; malformed values error.
func OptsFromEnv() ([]Opt, error) {
	return optsFromEnv(os.LookupEnv)
}

func optsFromEnv(lookup func(string) (string, bool)) ([]Opt, error) {
	var opts []Opt
	var err error

	str := func(key string, fn func(string) Opt) {
		if v, ok := lookup(envKey(key)); ok {
			opts = append(opts, fn(v))
		}
	}
	num := func(key string, fn func(int) Opt) {
		v, ok := lookup(envKey(key))
		if !ok || err != nil {
			return
		}
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = fmt.Errorf("invalid value %q for %s: %w", v, key, perr)
			return
		}
		opts = append(opts, fn(n))
	}
	dur := func(key string, fn func(time.Duration) Opt) {
		v, ok := lookup(envKey(key))
		if !ok || err != nil {
			return
		}
		d, perr := time.ParseDuration(v)
		if perr != nil {
			err = fmt.Errorf("invalid value %q for %s: %w", v, key, perr)
			return
		}
		opts = append(opts, fn(d))
	}

	str(EnvCoreTopic, func(v string) Opt { return RoleTopic(ServiceTypeCore, v) })
	num(EnvCorePartitions, func(n int) Opt { return RolePartitions(ServiceTypeCore, int32(n)) })
	str(EnvRuleEngineTopic, func(v string) Opt { return RoleTopic(ServiceTypeRuleEngine, v) })
	num(EnvRuleEnginePartitions, func(n int) Opt { return RolePartitions(ServiceTypeRuleEngine, int32(n)) })
	str(EnvHashFunctionName, HashFunction)
	num(EnvVirtualNodesSize, VirtualNodes)
	num(EnvMaxPendingRequests, MaxPendingRequests)
	dur(EnvRequestTimeout, RequestTimeout)
	dur(EnvPollInterval, PollInterval)

	if err != nil {
		return nil, err
	}
	return opts, nil
}
