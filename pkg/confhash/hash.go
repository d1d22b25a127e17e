package confhash

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashConfig computes the complete hash of a configuration: canonicalize,
// encode with sorted map keys, and digest. The result is a 32-character hex
// string that is stable across repeated calls and independent of map key
// insertion order.
func HashConfig(config any) (string, error) {
	data, err := json.Marshal(Canonicalize(config))
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// DurableHash computes the hash of a configuration with all ephemeral paths
// removed. Paths that do not exist in the configuration are ignored. A
// change confined to ephemeral paths leaves the durable hash unchanged.
func DurableHash(config any, ephemeralPaths []string) (string, error) {
	durable := Canonicalize(config)
	for _, path := range ephemeralPaths {
		durable = DeletePath(durable, path)
	}
	return HashConfig(durable)
}
