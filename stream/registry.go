package stream

import "sort"

// registry holds the bidirectional command table negotiated during the
// handshake. It is built exactly once and never mutated afterwards, so
// reads need no locking.
type registry struct {
	byName  map[string]int
	byIndex map[int]string
}

func newRegistry(commands map[string]int) *registry {
	r := &registry{
		byName:  make(map[string]int, len(commands)),
		byIndex: make(map[int]string, len(commands)),
	}

	for name, index := range commands {
		r.byName[name] = index
		r.byIndex[index] = name
	}

	return r
}

func (r *registry) index(name string) (int, bool) {
	index, ok := r.byName[name]
	return index, ok
}

func (r *registry) name(index int) (string, bool) {
	name, ok := r.byIndex[index]
	return name, ok
}

func (r *registry) has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

func (r *registry) names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}
