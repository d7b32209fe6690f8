package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is a byte-oriented cache used for serialized act indexes
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// IndexKey generates the cache key for an act's section index. The
// source fingerprint is part of the key, so a changed source text can
// never resurrect a stale index.
func IndexKey(actID, fingerprint string) string {
	hash := sha256.Sum256([]byte(actID + "\x00" + fingerprint))
	return "lexcheck:index:v1:" + hex.EncodeToString(hash[:])
}
