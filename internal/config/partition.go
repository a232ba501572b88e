package config

import "strconv"

// fnvHash reimplements the original's FNVHash helper (common/configuration.cpp):
// a textbook FNV-1a accumulated over the key's bytes, modulo 2^32: each
// byte is XORed into the hash before the multiply by the FNV prime. The
// result equals hash/fnv's New32a over the same bytes; the arithmetic is
// spelled out here because the partitioning decisions must agree with
// the rest of the sequencer/log-manager.
func fnvHash(data []byte) uint32 {
	var hash uint64 = 0x811c9dc5
	for _, b := range data {
		hash ^= uint64(b)
		hash = (hash * 0x01000193) % (1 << 32)
	}
	return uint32(hash)
}

// PartitionOf returns the partition a key belongs to, under c's configured
// partitioning scheme.
func (c *Config) PartitionOf(key string) uint32 {
	switch c.Partitioning {
	case SimplePartitioning:
		n, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return 0
		}
		return uint32(n % uint64(c.NumPartitions))
	default: // HashPartitioning
		n := int(c.PartitionKeyNumBytes)
		if n <= 0 || n > len(key) {
			n = len(key)
		}
		return fnvHash([]byte(key[:n])) % c.NumPartitions
	}
}

// KeyIsInLocalPartition reports whether key belongs to this process's
// local partition.
func (c *Config) KeyIsInLocalPartition(key string) bool {
	return c.PartitionOf(key) == c.LocalPartition
}
