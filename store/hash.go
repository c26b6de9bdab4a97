package store

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// RowHash returns the digest of "keySpace:columnFamily:key", hex encoded.
// It is deterministic and stable across adapter instances and processes:
// it is stored in rows as a foreign-key-like join value (ParentHashField),
// not just used as a cache key, so every adapter must compute it through
// this function. The column family is lowercased first, matching the
// adapters' table naming.
func RowHash(keySpace, columnFamily, key string) string {
	sum := sha1.Sum([]byte(keySpace + ":" + strings.ToLower(columnFamily) + ":" + key))
	return hex.EncodeToString(sum[:])
}

// IsRoot reports whether key denotes the hierarchy root. Root rows carry no
// parent hash.
func IsRoot(key string) bool {
	return key == "" || key == "/"
}

// ParentPath returns the parent of a path-like key: "/a/b" -> "/a",
// "/a" -> "/", "a/b" -> "a". The root is its own parent.
func ParentPath(key string) string {
	if IsRoot(key) {
		return key
	}
	k := strings.TrimSuffix(key, "/")
	i := strings.LastIndex(k, "/")
	switch {
	case i < 0:
		return ""
	case i == 0:
		return "/"
	default:
		return k[:i]
	}
}
