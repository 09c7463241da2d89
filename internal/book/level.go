package book

import "github.com/shopspring/decimal"

// node is one entry in a price level's FIFO. It is the stable handle that
// both the level and the order index hold a reference to: the level owns
// it as a linked-list member, the index stores a pointer to it so cancel
// can unlink in O(1) without walking the list.
type node struct {
	order      *Order
	prev, next *node
}

// Level is the FIFO queue of resting orders at a single price, on a single
// side. volume is kept as a running total rather than recomputed, so it
// stays O(1) to read after every append/remove/update.
type Level struct {
	Price  decimal.Decimal
	head   *node
	tail   *node
	volume decimal.Decimal
	length int
}

// NewLevel creates an empty level at price.
func NewLevel(price decimal.Decimal) *Level {
	return &Level{Price: price, volume: decimal.Zero}
}

// Volume returns the sum of remaining quantity across all orders at this level.
func (l *Level) Volume() decimal.Decimal { return l.volume }

// Len returns the number of resting orders at this level.
func (l *Level) Len() int { return l.length }

// Empty reports whether the level has no resting orders.
func (l *Level) Empty() bool { return l.length == 0 }

// Append adds an order to the tail of the FIFO and returns its handle.
func (l *Level) Append(o *Order) *node {
	n := &node{order: o}
	if l.tail == nil {
		l.head = n
		l.tail = n
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.volume = l.volume.Add(o.Quantity)
	l.length++
	return n
}

// Remove unlinks n from the FIFO in O(1) and decrements volume/length.
func (l *Level) Remove(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.volume = l.volume.Sub(n.order.Quantity)
	l.length--
}

// Head returns the oldest resting order's handle, or nil if the level is empty.
func (l *Level) Head() *node { return l.head }

// Order returns the resting order n holds.
func (n *node) Order() *Order { return n.order }

// Next returns the next-oldest node in the FIFO after n, or nil if n is the
// tail. Used by the matching engine to walk past a node without removing it,
// e.g. when skipping a self-owned resting order.
func (n *node) Next() *node { return n.next }

// Reduce decrements n's order quantity by delta (delta must be
// strictly less than the order's current quantity — full consumption goes
// through Remove instead) and keeps volume in sync.
func (l *Level) Reduce(n *node, delta decimal.Decimal) {
	n.order.Quantity = n.order.Quantity.Sub(delta)
	l.volume = l.volume.Sub(delta)
}
