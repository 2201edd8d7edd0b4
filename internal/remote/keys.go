package remote

import (
	"fmt"
	"strings"

	"github.com/aweris/lazyblob/internal/store"
)

const keyRoot = "data"

// KeyFor returns the remote key of a blob: data/<hash[:2]>/<hash[2:]>.
func KeyFor(hash string) (string, error) {
	if !store.ValidHash(hash) {
		return "", fmt.Errorf("%w: %q", store.ErrInvalidHash, hash)
	}
	return keyRoot + "/" + hash[:2] + "/" + hash[2:], nil
}

// HashFromKey reverses KeyFor.
func HashFromKey(key string) (string, error) {
	rest, ok := strings.CutPrefix(key, keyRoot+"/")
	if !ok {
		return "", fmt.Errorf("key %q is not under %s/", key, keyRoot)
	}
	shard, tail, ok := strings.Cut(rest, "/")
	if !ok || len(shard) != 2 || strings.Contains(tail, "/") || !store.ValidHash(shard+tail) {
		return "", fmt.Errorf("%w: key %q is not a blob key", store.ErrInvalidHash, key)
	}
	return shard + tail, nil
}
