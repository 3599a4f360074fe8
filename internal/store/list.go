package store

// Keyed is an entity with a server-assigned id
type Keyed interface {
	Key() int64
}

// List is a partition over a slice of keyed entities
type List[T Keyed] struct {
	*Partition[[]T]
}

// NewList creates an empty list partition. Reads always return copies.
func NewList[T Keyed](name string) *List[T] {
	return &List[T]{Partition: NewPartition[[]T](name, cloneSlice[T])}
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// Items returns a copy of the list
func (l *List[T]) Items() []T {
	return l.Data()
}

// Len returns the number of items
func (l *List[T]) Len() int {
	return len(l.Data())
}

// Get looks an item up by key
func (l *List[T]) Get(key int64) (T, bool) {
	for _, item := range l.Data() {
		if item.Key() == key {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Contains reports whether key is present
func (l *List[T]) Contains(key int64) bool {
	_, ok := l.Get(key)
	return ok
}

// Upsert replaces the item with the same key, or appends it
func (l *List[T]) Upsert(item T) {
	l.Mutate(func(items []T) []T {
		out := cloneSlice(items)
		for i := range out {
			if out[i].Key() == item.Key() {
				out[i] = item
				return out
			}
		}
		return append(out, item)
	})
}

// Remove deletes the item with key and reports whether it was present
func (l *List[T]) Remove(key int64) bool {
	removed := false
	l.Mutate(func(items []T) []T {
		out := make([]T, 0, len(items))
		for _, it := range items {
			if it.Key() == key {
				removed = true
				continue
			}
			out = append(out, it)
		}
		return out
	})
	return removed
}

// Replace swaps in a whole new list
func (l *List[T]) Replace(items []T) {
	l.Set(cloneSlice(items))
}

// Clear empties the list
func (l *List[T]) Clear() {
	l.Set(nil)
}
