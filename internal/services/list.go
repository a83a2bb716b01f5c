package services

import (
	"sync"
)

// Notifier wakes watchers after a view changed. A watcher that is slow to
// drain sees one pending wake-up, not one per change.
type Notifier struct {
	mu       sync.Mutex
	watchers map[int]chan struct{}
	nextID   int
}

func (n *Notifier) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	if n.watchers == nil {
		n.watchers = map[int]chan struct{}{}
	}
	id := n.nextID
	n.nextID++
	n.watchers[id] = ch
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.watchers, id)
			n.mu.Unlock()
		})
	}
}

func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// List is an id-keyed, server-ordered collection. Refetches take a ticket
// from Begin; a result is applied only if no later-started refetch has
// already landed, and always overrides optimistic edits made meanwhile.
type List[T any] struct {
	id      func(T) int64
	changed func()

	mu      sync.Mutex
	items   []T
	seq     uint64
	applied uint64
	loaded  bool
	err     error
	closed  bool
}

func NewList[T any](id func(T) int64, changed func()) *List[T] {
	if changed == nil {
		changed = func() {}
	}
	return &List[T]{id: id, changed: changed}
}

// Begin reserves a ticket for a refetch about to be issued.
func (l *List[T]) Begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return l.seq
}

// Replace installs a refetch result. It reports false when the result was
// discarded: the list is closed or a newer refetch already applied.
func (l *List[T]) Replace(ticket uint64, items []T) bool {
	l.mu.Lock()
	if l.closed || ticket <= l.applied {
		l.mu.Unlock()
		return false
	}
	l.applied = ticket
	l.items = append([]T(nil), items...)
	l.loaded = true
	l.err = nil
	l.mu.Unlock()
	l.changed()
	return true
}

// Fail records a refetch error, keeping the last known items.
func (l *List[T]) Fail(ticket uint64, err error) bool {
	l.mu.Lock()
	if l.closed || ticket <= l.applied {
		l.mu.Unlock()
		return false
	}
	l.applied = ticket
	l.err = err
	l.mu.Unlock()
	l.changed()
	return true
}

// Update applies fn to the item with id. Absent ids are a no-op.
func (l *List[T]) Update(id int64, fn func(*T)) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	found := false
	for i := range l.items {
		if l.id(l.items[i]) == id {
			fn(&l.items[i])
			found = true
			break
		}
	}
	l.mu.Unlock()
	if found {
		l.changed()
	}
	return found
}

func (l *List[T]) Remove(id int64) bool {
	return l.RemoveWhere(func(item T) bool { return l.id(item) == id }) > 0
}

// RemoveWhere drops every item for which drop reports true and returns
// how many went.
func (l *List[T]) RemoveWhere(drop func(T) bool) int {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0
	}
	kept := l.items[:0:0]
	removed := 0
	for _, item := range l.items {
		if drop(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	if removed > 0 {
		l.items = kept
	}
	l.mu.Unlock()
	if removed > 0 {
		l.changed()
	}
	return removed
}

func (l *List[T]) Get(id int64) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, item := range l.items {
		if l.id(item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Snapshot returns a copy of the items, whether a refetch ever succeeded, and
// the error of the latest refetch.
func (l *List[T]) Snapshot() ([]T, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := make([]T, len(l.items))
	copy(items, l.items)
	return items, l.loaded, l.err
}

func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Close makes every later mutation a no-op.
func (l *List[T]) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

// Value is a single refetched value with the same ticket rules as List.
type Value[T any] struct {
	changed func()

	mu      sync.Mutex
	value   T
	seq     uint64
	applied uint64
	loaded  bool
	err     error
	closed  bool
}

func NewValue[T any](changed func()) *Value[T] {
	if changed == nil {
		changed = func() {}
	}
	return &Value[T]{changed: changed}
}

func (v *Value[T]) Begin() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	return v.seq
}

func (v *Value[T]) Set(ticket uint64, value T) bool {
	v.mu.Lock()
	if v.closed || ticket <= v.applied {
		v.mu.Unlock()
		return false
	}
	v.applied = ticket
	v.value = value
	v.loaded = true
	v.err = nil
	v.mu.Unlock()
	v.changed()
	return true
}

func (v *Value[T]) Fail(ticket uint64, err error) bool {
	v.mu.Lock()
	if v.closed || ticket <= v.applied {
		v.mu.Unlock()
		return false
	}
	v.applied = ticket
	v.err = err
	v.mu.Unlock()
	v.changed()
	return true
}

func (v *Value[T]) Get() (T, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.loaded, v.err
}

func (v *Value[T]) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}
