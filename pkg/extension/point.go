package extension

import (
	"sort"
	"sync"
)

// Point is a named registry of extensions of one kind, keyed by extension name
type Point[T Extension] struct {
	name string

	mu    sync.RWMutex
	items map[string]entry[T]
	seq   uint64
}

type entry[T Extension] struct {
	ext T
	seq uint64
}

// NewPoint creates an empty extension point
func NewPoint[T Extension](name string) *Point[T] {
	return &Point[T]{
		name:  name,
		items: make(map[string]entry[T]),
	}
}

// Name returns the extension point name
func (p *Point[T]) Name() string {
	return p.name
}

// Register adds ext under its own name. An existing extension with the same
// name is replaced; the return value reports whether that happened.
func (p *Point[T]) Register(ext T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := ext.Name()
	_, replaced := p.items[name]
	p.seq++
	p.items[name] = entry[T]{ext: ext, seq: p.seq}
	return replaced
}

// Unregister removes the named extension
func (p *Point[T]) Unregister(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.items[name]; !exists {
		return false
	}
	delete(p.items, name)
	return true
}

// Get retrieves an extension by name
func (p *Point[T]) Get(name string) (T, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.items[name]
	return e.ext, ok
}

// Has checks if an extension is registered
func (p *Point[T]) Has(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.items[name]
	return ok
}

// Len returns the number of registered extensions
func (p *Point[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.items)
}

// GetAll returns every extension in registration order
func (p *Point[T]) GetAll() []T {
	entries := p.snapshot()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})
	return unwrap(entries)
}

// GetSorted returns every extension ordered by priority, highest first.
// Equal priorities keep registration order.
func (p *Point[T]) GetSorted() []T {
	entries := p.snapshot()
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := PriorityOf(entries[i].ext), PriorityOf(entries[j].ext)
		if pi != pj {
			return pi > pj
		}
		return entries[i].seq < entries[j].seq
	})
	return unwrap(entries)
}

// Names returns the registered names in registration order
func (p *Point[T]) Names() []string {
	all := p.GetAll()
	names := make([]string, 0, len(all))
	for _, ext := range all {
		names = append(names, ext.Name())
	}
	return names
}

func (p *Point[T]) snapshot() []entry[T] {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]entry[T], 0, len(p.items))
	for _, e := range p.items {
		entries = append(entries, e)
	}
	return entries
}

func unwrap[T Extension](entries []entry[T]) []T {
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ext)
	}
	return out
}
