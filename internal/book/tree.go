package book

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"crosslot/pkg/types"
)

// Tree is one side (bid or ask) of a book: a price-ordered map from price
// to Level, backed by a generic b-tree. Both sides share the same
// ascending-by-price comparator; "best price" differs only in which end of
// the tree a side reads from (bids read the max, asks read the min), kept
// in BestLevel below rather than in two separate comparators.
//
// Grounded on saiputravu-Exchange's internal/engine/orderbook.go, which
// keeps a btree.BTreeG[*PriceLevel] per side for the same reason: O(log n)
// insert/remove and O(log n) (amortized O(1) via MinMut/MaxMut) best-price
// access.
type Tree struct {
	side   types.Side
	levels *btree.BTreeG[*Level]
	volume decimal.Decimal
	count  int
}

func priceLess(a, b *Level) bool {
	return a.Price.LessThan(b.Price)
}

// NewTree creates an empty price tree for one side of one book.
func NewTree(side types.Side) *Tree {
	return &Tree{
		side:   side,
		levels: btree.NewBTreeG(priceLess),
		volume: decimal.Zero,
	}
}

// Volume returns the aggregate remaining quantity across every level on
// this side.
func (t *Tree) Volume() decimal.Decimal { return t.volume }

// OrderCount returns the aggregate number of resting orders on this side.
func (t *Tree) OrderCount() int { return t.count }

// InsertOrder finds or creates the level at order.Price and appends order
// to its FIFO, returning the level and the node handle for the order
// index.
func (t *Tree) InsertOrder(o *Order) (*Level, *node) {
	probe := &Level{Price: o.Price}
	lvl, ok := t.levels.GetMut(probe)
	if !ok {
		lvl = NewLevel(o.Price)
		t.levels.Set(lvl)
	}
	n := lvl.Append(o)
	t.volume = t.volume.Add(o.Quantity)
	t.count++
	return lvl, n
}

// RemoveNode removes n from its level, deleting the level from the tree if
// it becomes empty, and keeps the side's aggregates in sync. qtyAtRemoval
// is the order's remaining quantity immediately before removal.
func (t *Tree) RemoveNode(lvl *Level, n *node, qtyAtRemoval decimal.Decimal) {
	lvl.Remove(n)
	t.volume = t.volume.Sub(qtyAtRemoval)
	t.count--
	if lvl.Empty() {
		t.levels.Delete(lvl)
	}
}

// ReduceHead decrements n's order quantity by delta without removing it
// (used for partial fills against the maker). Despite the name, n need not
// be lvl's current head — self-trade prevention can match against a node
// further down the FIFO after skipping self-owned orders ahead of it.
func (t *Tree) ReduceHead(lvl *Level, n *node, delta decimal.Decimal) {
	lvl.Reduce(n, delta)
	t.volume = t.volume.Sub(delta)
}

// BestLevel returns the level at the best price for this side: the
// maximum price for bids, the minimum for asks.
func (t *Tree) BestLevel() (*Level, bool) {
	if t.side == types.Bid {
		return t.levels.MaxMut()
	}
	return t.levels.MinMut()
}

// BestPrice returns just the best price, if any level exists.
func (t *Tree) BestPrice() (decimal.Decimal, bool) {
	lvl, ok := t.BestLevel()
	if !ok {
		return decimal.Zero, false
	}
	return lvl.Price, true
}

// Empty reports whether this side holds no resting orders.
func (t *Tree) Empty() bool {
	return t.levels.Len() == 0
}

// Levels returns every level on this side ordered best-price-first
// (descending for bids, ascending for asks). Used by the matching loop to
// walk past a price level that turns out to be entirely self-owned without
// needing a dedicated "next best" cursor into the b-tree.
func (t *Tree) Levels() []*Level {
	out := make([]*Level, 0, t.levels.Len())
	visit := func(lvl *Level) bool {
		out = append(out, lvl)
		return true
	}
	if t.side == types.Bid {
		t.levels.Reverse(visit)
	} else {
		t.levels.Scan(visit)
	}
	return out
}

// PriceQty is one row of a depth snapshot.
type PriceQty struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Snapshot returns up to depth levels ordered best-price-first (descending
// for bids, ascending for asks). depth <= 0 means unlimited.
func (t *Tree) Snapshot(depth int) []PriceQty {
	out := make([]PriceQty, 0, t.levels.Len())
	visit := func(lvl *Level) bool {
		out = append(out, PriceQty{Price: lvl.Price, Quantity: lvl.Volume()})
		return depth <= 0 || len(out) < depth
	}
	if t.side == types.Bid {
		t.levels.Reverse(func(lvl *Level) bool { return visit(lvl) })
	} else {
		t.levels.Scan(func(lvl *Level) bool { return visit(lvl) })
	}
	return out
}
