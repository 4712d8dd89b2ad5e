package chain

// Slot is a settable location whose previous value can be restored.
type Slot[T any] interface {
	Get() T
	Put(T)
}

type ptrSlot[T any] struct{ p *T }

func (s ptrSlot[T]) Get() T  { return *s.p }
func (s ptrSlot[T]) Put(v T) { *s.p = v }

// Set writes v into slot and journals the old value.
func Set[T any](tx *Tx, slot Slot[T], v T) {
	old := slot.Get()
	slot.Put(v)
	tx.OnRollback(func() { slot.Put(old) })
}

// Assign writes v into *p and journals the old value.
func Assign[T any](tx *Tx, p *T, v T) {
	Set[T](tx, ptrSlot[T]{p: p}, v)
}

// Put writes m[k] = v and journals the previous entry, deleting the key on
// rollback when it did not exist.
func Put[K comparable, V any](tx *Tx, m map[K]V, k K, v V) {
	old, existed := m[k]
	m[k] = v
	tx.OnRollback(func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

// Delete removes m[k] and journals the entry for rollback.
func Delete[K comparable, V any](tx *Tx, m map[K]V, k K) {
	old, existed := m[k]
	if !existed {
		return
	}
	delete(m, k)
	tx.OnRollback(func() { m[k] = old })
}

// Append appends v to *s and journals the previous length.
func Append[T any](tx *Tx, s *[]T, v ...T) {
	n := len(*s)
	*s = append(*s, v...)
	tx.OnRollback(func() { *s = (*s)[:n] })
}
