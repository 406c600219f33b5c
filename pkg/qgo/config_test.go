package qgo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestOptsFromEnv(t *testing.T) {
	opts, err := optsFromEnv(lookupFrom(map[string]string{
		"QUEUE_CORE_TOPIC":                   "tb_core",
		"QUEUE_CORE_PARTITIONS":              "12",
		"QUEUE_RULE_ENGINE_TOPIC":            "tb_rule_engine",
		"QUEUE_RULE_ENGINE_PARTITIONS":       "34",
		"QUEUE_PARTITIONS_HASH_FUNCTION_NAME": "crc32",
		"QUEUE_PARTITIONS_VIRTUAL_NODES_SIZE": "8",
		"QUEUE_REQUESTS_MAX_PENDING":          "500",
		"QUEUE_REQUESTS_TIMEOUT":              "3s",
		"QUEUE_REQUESTS_POLL_INTERVAL":        "10ms",
	}))
	require.NoError(t, err)

	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	require.NoError(t, c.validate())

	require.Equal(t, "tb_core", c.topics[ServiceTypeCore])
	require.Equal(t, int32(12), c.partitions[ServiceTypeCore])
	require.Equal(t, "tb_rule_engine", c.topics[ServiceTypeRuleEngine])
	require.Equal(t, int32(34), c.partitions[ServiceTypeRuleEngine])
	require.Equal(t, HashCRC32, c.hashName)
	require.Equal(t, 8, c.virtualNodes)
	require.Equal(t, 500, c.maxPending)
	require.Equal(t, 3*time.Second, c.requestTimeout)
	require.Equal(t, 10*time.Millisecond, c.pollInterval)
}

func TestOptsFromEnvDefaults(t *testing.T) {
	opts, err := optsFromEnv(lookupFrom(nil))
	require.NoError(t, err)
	require.Empty(t, opts)

	c := defaultCfg()
	require.NoError(t, c.validate())
	require.Equal(t, HashMurmur3_128, c.hashName)
	require.Equal(t, 16, c.virtualNodes)
}

func TestOptsFromEnvMalformed(t *testing.T) {
	_, err := optsFromEnv(lookupFrom(map[string]string{
		"QUEUE_CORE_PARTITIONS": "a-hundred",
	}))
	require.Error(t, err)

	_, err = optsFromEnv(lookupFrom(map[string]string{
		"QUEUE_REQUESTS_TIMEOUT": "soon",
	}))
	require.Error(t, err)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	for _, bad := range []Opt{
		HashFunction("sha666"),
		VirtualNodes(0),
		RolePartitions(ServiceTypeCore, 0),
		MaxPendingRequests(-1),
		RequestTimeout(0),
		PollInterval(0),
	} {
		c := defaultCfg()
		bad.apply(&c)
		require.Error(t, c.validate())
	}
}
