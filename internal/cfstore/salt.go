package cfstore

import (
	"fmt"

	"github.com/spaolacci/murmur3"
)

// SaltedRowKey prefixes key with a murmur3 hash bucket so sequential keys
// spread across regions. buckets <= 0 returns key unchanged.
func SaltedRowKey(key string, buckets int) string {
	if buckets <= 0 {
		return key
	}
	bucket := murmur3.Sum32([]byte(key)) % uint32(buckets)
	return fmt.Sprintf("%02x-%s", bucket, key)
}
