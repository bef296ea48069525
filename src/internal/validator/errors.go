package validator

import (
	"fmt"
	"strings"

	"github.com/VectorBits/facetsplit/src/internal/abi"
)

// SelectorCollisionError reports one selector routed from more than one place.
// Owners are "Facet:signature" pairs in route order.
type SelectorCollisionError struct {
	Selector abi.Selector
	Owners   []string
}

func (e *SelectorCollisionError) Error() string {
	return fmt.Sprintf("selector %s claimed by %s", e.Selector, strings.Join(e.Owners, ", "))
}

// StorageCollisionError reports variables whose storage bytes overlap.
type StorageCollisionError struct {
	Slot      int64
	Variables []string
}

func (e *StorageCollisionError) Error() string {
	return fmt.Sprintf("storage slot %d shared by %s", e.Slot, strings.Join(e.Variables, ", "))
}

// BannedSelectorError reports a reserved selector routed to an unprivileged
// facet.
type BannedSelectorError struct {
	Selector  abi.Selector
	Signature string
	Facet     string
}

func (e *BannedSelectorError) Error() string {
	return fmt.Sprintf("reserved selector %s (%s) routed to unprivileged facet %s", e.Selector, e.Signature, e.Facet)
}

type SizeExceededError struct {
	ChunkID int
	Facet   string
	Size    uint64
	Limit   uint64
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("chunk %d (%s) is %d bytes, ceiling is %d", e.ChunkID, e.Facet, e.Size, e.Limit)
}
