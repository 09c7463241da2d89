package matching

import "crosslot/pkg/types"

// Tape is the append-only trade log for one book. It never rewrites or
// deletes an entry; readers ask for the last N records.
type Tape struct {
	trades []types.Trade
	limit  int // 0 means unbounded
}

// NewTape creates a tape. limit <= 0 means the tape keeps every trade for
// the life of the process.
func NewTape(limit int) *Tape {
	return &Tape{limit: limit}
}

// Append adds a trade to the end of the tape, evicting the oldest entry if
// the tape is bounded and full.
func (t *Tape) Append(tr types.Trade) {
	t.trades = append(t.trades, tr)
	if t.limit > 0 && len(t.trades) > t.limit {
		t.trades = t.trades[len(t.trades)-t.limit:]
	}
}

// Last returns up to n most recent trades, oldest first. n <= 0 returns
// everything retained.
func (t *Tape) Last(n int) []types.Trade {
	if n <= 0 || n >= len(t.trades) {
		out := make([]types.Trade, len(t.trades))
		copy(out, t.trades)
		return out
	}
	start := len(t.trades) - n
	out := make([]types.Trade, n)
	copy(out, t.trades[start:])
	return out
}

// Len returns the number of trades currently retained.
func (t *Tape) Len() int {
	return len(t.trades)
}
