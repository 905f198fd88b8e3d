// Package partition maps record numbers onto shard hashes.
//
// The mapping is version-critical: every read resolves its shard with the
// same function that placed the record at write time, so changing the hash
// or the partition count orphans previously written data unless it is
// migrated.
package partition

import (
	"regexp"
	"strconv"
	"strings"
)

// KeyPrefix is the Redis key namespace for partition hashes.
const KeyPrefix = "part:"

var numberPattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// Router resolves record numbers to partitions for a fixed partition count.
type Router struct {
	partitions int
}

func NewRouter(partitions int) *Router {
	if partitions <= 0 {
		partitions = 1
	}
	return &Router{partitions: partitions}
}

func (r *Router) Partitions() int {
	return r.partitions
}

// PartitionOf returns the partition id for a number: the sum of its byte
// values mod the partition count. Cheap, deterministic, and uniform enough
// for 10-digit numeric keys; cryptographic strength is not needed here.
func (r *Router) PartitionOf(number string) int {
	sum := 0
	for i := 0; i < len(number); i++ {
		sum += int(number[i])
	}
	return sum % r.partitions
}

// PartitionKey returns the Redis key of the shard hash holding the number.
func (r *Router) PartitionKey(number string) string {
	return KeyPrefix + strconv.Itoa(r.PartitionOf(number))
}

// IsValidNumber reports whether the trimmed input is a well-formed
// 10-digit subscriber number. Callers reject invalid numbers before any
// routing or storage work happens.
func IsValidNumber(number string) bool {
	return numberPattern.MatchString(strings.TrimSpace(number))
}
