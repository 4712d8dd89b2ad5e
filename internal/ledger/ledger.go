// Package ledger holds keyed exposure counters: spent-on-game, risk per leg
// combination, risk per asset and similar. Every mutation is journaled on the
// transaction so a revert restores the counter.
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/num"
)

// Counters maps a canonical key to a non-negative amount.
type Counters[K comparable] struct {
	name string
	m    map[K]decimal.Decimal
}

// New creates an empty counter set. The name is only used for diagnostics.
func New[K comparable](name string) *Counters[K] {
	return &Counters[K]{name: name, m: make(map[K]decimal.Decimal)}
}

// Name returns the diagnostic name.
func (c *Counters[K]) Name() string { return c.name }

// Get returns the counter for k, zero when unset.
func (c *Counters[K]) Get(k K) decimal.Decimal {
	return c.m[k]
}

// Add increments k by delta and returns the new value.
func (c *Counters[K]) Add(tx *chain.Tx, k K, delta decimal.Decimal) decimal.Decimal {
	v := c.m[k].Add(delta)
	chain.Put(tx, c.m, k, v)
	return v
}

// Sub decrements k by delta, flooring at zero, and returns the new value.
func (c *Counters[K]) Sub(tx *chain.Tx, k K, delta decimal.Decimal) decimal.Decimal {
	v := num.Floor(c.m[k].Sub(delta))
	chain.Put(tx, c.m, k, v)
	return v
}

// Set overwrites k.
func (c *Counters[K]) Set(tx *chain.Tx, k K, v decimal.Decimal) {
	chain.Put(tx, c.m, k, v)
}

// Reset removes k.
func (c *Counters[K]) Reset(tx *chain.Tx, k K) {
	chain.Delete(tx, c.m, k)
}

// AddWithin increments k by delta only when the result stays at or below
// limit. It reports whether the increment was applied.
func (c *Counters[K]) AddWithin(tx *chain.Tx, k K, delta, limit decimal.Decimal) (decimal.Decimal, bool) {
	v := c.m[k].Add(delta)
	if v.GreaterThan(limit) {
		return c.m[k], false
	}
	chain.Put(tx, c.m, k, v)
	return v, true
}

// Len returns the number of keys holding a value.
func (c *Counters[K]) Len() int { return len(c.m) }

// Snapshot copies every counter, ordered by the supplied key comparison.
func (c *Counters[K]) Snapshot(less func(a, b K) bool) []Entry[K] {
	out := make([]Entry[K], 0, len(c.m))
	for k, v := range c.m {
		out = append(out, Entry[K]{Key: k, Value: v})
	}
	if less != nil {
		sort.Slice(out, func(i, j int) bool { return less(out[i].Key, out[j].Key) })
	}
	return out
}

// Entry is one key/value pair of a snapshot.
type Entry[K comparable] struct {
	Key   K
	Value decimal.Decimal
}
