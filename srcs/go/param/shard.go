package param

import (
	"encoding/binary"
	"hash/fnv"
)

// Shard maps a key to one of n shards with FNV-1a, stable across processes.
func Shard(key int, n int) int {
	var bs [8]byte
	binary.LittleEndian.PutUint64(bs[:], uint64(key))
	h := fnv.New32a()
	h.Write(bs[:])
	return int(h.Sum32() % uint32(n))
}
