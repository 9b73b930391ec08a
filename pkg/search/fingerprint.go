package search

import (
	"encoding/json"
	"fmt"

	"github.com/spaolacci/murmur3"
)

type canonical interface {
	json.Marshaler
	fmt.Stringer
}

// fingerprint hashes the canonical JSON encoding. Struct fields marshal in
// declaration order, so equal trees always produce the same bytes. A tree
// that cannot be encoded is hashed by its explain form instead.
func fingerprint(v canonical) string {
	data, err := v.MarshalJSON()
	if err != nil {
		data = []byte("explain:" + v.String())
	}
	hi, lo := murmur3.Sum128(data)
	return fmt.Sprintf("%016x%016x", hi, lo)
}
