// Package config carries the tunables the scheduler core consumes (§6 of
// the design). It does not parse CLI flags or discover cluster topology —
// that machinery lives in the forwarder/sequencer layer, outside this
// module — but it does support loading the option table from a TOML file
// so the core can be exercised standalone in tests and local harnesses.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"

	"github.com/pingcap-incubator/ddrslog/log"
)

// PartitioningScheme selects how a key maps to a partition.
type PartitioningScheme int

const (
	// SimplePartitioning treats keys as decimal integers and assigns
	// partitions by modulo.
	SimplePartitioning PartitioningScheme = iota
	// HashPartitioning assigns partitions by FNV-1a hash of the key's
	// leading PartitionKeyNumBytes bytes.
	HashPartitioning
)

// Config is the option table of §6. One Config is shared read-only across
// all threads of a partition once the process starts.
type Config struct {
	LogLevel string

	NumPartitions uint32
	NumReplicas   uint32
	NumWorkers    uint32

	// LocalReplica/LocalPartition identify which (replica, partition) this
	// process is running as; MachineID is derived from them.
	LocalReplica  uint32
	LocalPartition uint32

	// DDRInterval is the deadlock resolver's run period (check_interval in
	// §4.4). Defaults to 40ms, matching the original implementation.
	DDRInterval time.Duration

	// ReplicationFactor participates in acceptance tests for metadata; the
	// core only enforces ReplicationFactor <= NumReplicas.
	ReplicationFactor uint32

	Partitioning           PartitioningScheme
	PartitionKeyNumBytes   uint32

	// BypassMHOrderer and SynchronizedBatching affect when lock-only
	// fragments of a multi-home transaction become observable to the
	// core; they change timing, not correctness, and no code in this
	// module reads them.
	BypassMHOrderer      bool
	SynchronizedBatching bool

	// ReturnDummyTxn is a worker-level debugging shortcut; the core
	// threads it through unchanged.
	ReturnDummyTxn bool

	// MetricsSampleRate is "out of 256", matching the original Sampler.
	MetricsSampleRate uint32
}

// MachineID returns replica*NumPartitions + partition, as defined in the
// original's common/types.h.
func (c *Config) MachineID() uint32 {
	return c.LocalReplica*c.NumPartitions + c.LocalPartition
}

// Validate reports configuration combinations the core cannot operate
// under. It never mutates c.
func (c *Config) Validate() error {
	if c.NumPartitions == 0 {
		return errors.New("num_partitions must be greater than 0")
	}
	if c.NumReplicas == 0 {
		return errors.New("num_replicas must be greater than 0")
	}
	if c.ReplicationFactor > c.NumReplicas {
		return errors.Errorf("replication_factor (%d) must not exceed num_replicas (%d)",
			c.ReplicationFactor, c.NumReplicas)
	}
	if c.LocalReplica >= c.NumReplicas {
		return errors.Errorf("local replica %d out of range [0, %d)", c.LocalReplica, c.NumReplicas)
	}
	if c.LocalPartition >= c.NumPartitions {
		return errors.Errorf("local partition %d out of range [0, %d)", c.LocalPartition, c.NumPartitions)
	}
	if c.NumWorkers == 0 {
		log.Warnf("num_workers is 0, defaulting to 1")
	}
	if c.DDRInterval <= 0 {
		return errors.New("ddr_interval must be positive")
	}
	return nil
}

func getLogLevel() string {
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		return l
	}
	return "info"
}

// NewDefaultConfig returns the option table used when no file is supplied.
func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:             getLogLevel(),
		NumPartitions:        1,
		NumReplicas:          1,
		NumWorkers:           3,
		DDRInterval:          40 * time.Millisecond,
		ReplicationFactor:    1,
		Partitioning:         HashPartitioning,
		PartitionKeyNumBytes: 8,
		MetricsSampleRate:    10,
	}
}

// NewTestConfig returns a small, fast-resolving option table for tests.
func NewTestConfig() *Config {
	c := NewDefaultConfig()
	c.DDRInterval = 5 * time.Millisecond
	c.MetricsSampleRate = 256
	return c
}

// fileConfig mirrors Config's fields using TOML-friendly names; durations
// are expressed in milliseconds since TOML has no native duration type.
type fileConfig struct {
	LogLevel             string `toml:"log-level"`
	NumPartitions        uint32 `toml:"num-partitions"`
	NumReplicas          uint32 `toml:"num-replicas"`
	NumWorkers           uint32 `toml:"num-workers"`
	LocalReplica         uint32 `toml:"local-replica"`
	LocalPartition       uint32 `toml:"local-partition"`
	DDRIntervalMs        int64  `toml:"ddr-interval-ms"`
	ReplicationFactor    uint32 `toml:"replication-factor"`
	HashPartitioning     *bool  `toml:"hash-partitioning"`
	PartitionKeyNumBytes uint32 `toml:"partition-key-num-bytes"`
	BypassMHOrderer      bool   `toml:"bypass-mh-orderer"`
	SynchronizedBatching bool   `toml:"synchronized-batching"`
	ReturnDummyTxn       bool   `toml:"return-dummy-txn"`
	MetricsSampleRate    uint32 `toml:"metrics-sample-rate"`
}

// FromFile loads a Config from a TOML file, filling in defaults for any
// field the file omits.
func FromFile(path string) (*Config, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, errors.Annotatef(err, "failed to parse config file %q", path)
	}

	c := NewDefaultConfig()
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.NumPartitions != 0 {
		c.NumPartitions = fc.NumPartitions
	}
	if fc.NumReplicas != 0 {
		c.NumReplicas = fc.NumReplicas
	}
	if fc.NumWorkers != 0 {
		c.NumWorkers = fc.NumWorkers
	}
	c.LocalReplica = fc.LocalReplica
	c.LocalPartition = fc.LocalPartition
	if fc.DDRIntervalMs != 0 {
		c.DDRInterval = time.Duration(fc.DDRIntervalMs) * time.Millisecond
	}
	if fc.ReplicationFactor != 0 {
		c.ReplicationFactor = fc.ReplicationFactor
	}
	if fc.HashPartitioning != nil {
		if *fc.HashPartitioning {
			c.Partitioning = HashPartitioning
		} else {
			c.Partitioning = SimplePartitioning
		}
	}
	if fc.PartitionKeyNumBytes != 0 {
		c.PartitionKeyNumBytes = fc.PartitionKeyNumBytes
	}
	c.BypassMHOrderer = fc.BypassMHOrderer
	c.SynchronizedBatching = fc.SynchronizedBatching
	c.ReturnDummyTxn = fc.ReturnDummyTxn
	if fc.MetricsSampleRate != 0 {
		c.MetricsSampleRate = fc.MetricsSampleRate
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
