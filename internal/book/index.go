package book

import (
	"fmt"

	"crosslot/pkg/types"
)

// entry is what the index keeps per resting order: enough to find and
// unlink its node without touching the tree.
type entry struct {
	side types.Side
	lvl  *Level
	n    *node
}

// Index maps order_id to its resting location, so Cancel and partial-fill
// bookkeeping never have to walk a level to find an order. It is the C3
// counterpart to the per-side Trees: the trees own ordering, the index
// owns lookup.
type Index struct {
	byID map[uint64]entry
}

// NewIndex creates an empty order index.
func NewIndex() *Index {
	return &Index{byID: make(map[uint64]entry)}
}

// Track records that orderID now rests at lvl/n on the given side.
func (ix *Index) Track(orderID uint64, side types.Side, lvl *Level, n *node) {
	ix.byID[orderID] = entry{side: side, lvl: lvl, n: n}
}

// Forget removes orderID from the index without touching the tree; callers
// that also need to unlink the order from its level should use Locate
// first and remove it from the tree themselves.
func (ix *Index) Forget(orderID uint64) {
	delete(ix.byID, orderID)
}

// Locate returns the side, level and node handle for a resting order.
func (ix *Index) Locate(orderID uint64) (types.Side, *Level, *node, bool) {
	e, ok := ix.byID[orderID]
	if !ok {
		return "", nil, nil, false
	}
	return e.side, e.lvl, e.n, true
}

// Has reports whether orderID is currently resting.
func (ix *Index) Has(orderID uint64) bool {
	_, ok := ix.byID[orderID]
	return ok
}

// Len returns the number of resting orders tracked by the index.
func (ix *Index) Len() int {
	return len(ix.byID)
}

// ErrOrderNotFound is returned when a cancel or lookup targets an order_id
// that is not currently resting (already filled, already canceled, or
// never existed).
var ErrOrderNotFound = fmt.Errorf("order not found")
