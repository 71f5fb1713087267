package renderer

import (
	"fmt"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

// FindMemoryType returns the first memory type index whose bit is set in
// typeBits and whose property flags include every flag in required. The
// index order therefore decides which heap backs an allocation.
func FindMemoryType(props gpu.MemoryProperties, typeBits uint32, required gpu.MemoryPropertyFlags) (uint32, error) {
	for i, t := range props.Types {
		if i >= 32 {
			break
		}
		if typeBits&(1<<uint(i)) != 0 && t.PropertyFlags.Has(required) {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("type bits %#x with properties %#x: %w", typeBits, uint32(required), core.ErrNoSuitableMemory)
}
