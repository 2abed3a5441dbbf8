package wasmengine

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ComponentTag returns a short, stable identifier for a component's
// filesystem path, suitable as a log or metric label. Hashing avoids
// leaking full on-disk paths into log aggregators or metric label
// cardinality.
func ComponentTag(path string) string {
	return fmt.Sprintf("%08x", uint32(xxhash.Sum64String(path)))
}
