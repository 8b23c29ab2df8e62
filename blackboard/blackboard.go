// Package blackboard implements the hierarchical store every motion
// component reads from and publishes to, and the registry binding symbolic
// variables to live paths within it.
package blackboard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cast"

	"github.com/Ange-Michel/wholebody/symbolic"
)

// FramePair keys forward-kinematic entries by their root and tip links.
type FramePair struct {
	Root string
	Tip  string
}

// Path addresses a leaf. Keys are strings, ints, or FramePairs.
type Path []interface{}

// P builds a Path from its keys.
func P(keys ...interface{}) Path { return Path(keys) }

// Append returns a new path with more keys appended.
func (p Path) Append(keys ...interface{}) Path {
	out := make(Path, 0, len(p)+len(keys))
	out = append(out, p...)
	out = append(out, keys...)
	return out
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, k := range p {
		parts[i] = fmt.Sprintf("%v", k)
	}
	return strings.Join(parts, "/")
}

// key returns a canonical, collision-free string form.
func (p Path) key() string {
	var b strings.Builder
	for i, k := range p {
		if i > 0 {
			b.WriteByte(0)
		}
		switch v := k.(type) {
		case string:
			b.WriteString("s:")
			b.WriteString(v)
		case int:
			fmt.Fprintf(&b, "i:%d", v)
		case FramePair:
			fmt.Fprintf(&b, "f:%s\x01%s", v.Root, v.Tip)
		default:
			fmt.Fprintf(&b, "x:%v", v)
		}
	}
	return b.String()
}

// PathMissingError reports a read through an absent key.
type PathMissingError struct {
	Path Path
}

func (e *PathMissingError) Error() string {
	return fmt.Sprintf("no data at path %q", e.Path.String())
}

type node struct {
	children map[interface{}]*node // nil for leaves
	value    interface{}
}

func (n *node) clone() *node {
	out := &node{value: n.value}
	if n.children != nil {
		out.children = make(map[interface{}]*node, len(n.children))
		for k, c := range n.children {
			out.children[k] = c.clone()
		}
	}
	return out
}

// Store is the blackboard. It is owned by the tick scheduler and not safe
// for concurrent use. Leaf values are treated as immutable: writers replace
// leaves with Set, never mutate a value previously stored, which is what
// makes snapshots cheap and exact.
type Store struct {
	root *node

	mu      sync.Mutex
	symbols map[string]symbolic.Symbol
	paths   []Path
}

// New returns an empty store.
func New() *Store {
	return &Store{
		root:    &node{children: map[interface{}]*node{}},
		symbols: map[string]symbolic.Symbol{},
	}
}

// Set writes value at path, creating intermediate nodes as needed.
func (s *Store) Set(path Path, value interface{}) {
	if len(path) == 0 {
		panic("blackboard: cannot set the root")
	}
	n := s.root
	for _, k := range path[:len(path)-1] {
		if n.children == nil {
			n.children = map[interface{}]*node{}
			n.value = nil
		}
		child, ok := n.children[k]
		if !ok {
			child = &node{children: map[interface{}]*node{}}
			n.children[k] = child
		}
		n = child
	}
	last := path[len(path)-1]
	if n.children == nil {
		n.children = map[interface{}]*node{}
		n.value = nil
	}
	n.children[last] = &node{value: value}
}

// Get reads the value at path. Leaves holding closures are invoked.
func (s *Store) Get(path Path) (interface{}, error) {
	n := s.root
	for _, k := range path {
		if n.children == nil {
			return nil, &PathMissingError{Path: path}
		}
		child, ok := n.children[k]
		if !ok {
			return nil, &PathMissingError{Path: path}
		}
		n = child
	}
	if n.children != nil {
		return nil, &PathMissingError{Path: path}
	}
	switch fn := n.value.(type) {
	case func() interface{}:
		return fn(), nil
	case func() float64:
		return fn(), nil
	}
	return n.value, nil
}

// GetFloat reads the value at path coerced to float64.
func (s *Store) GetFloat(path Path) (float64, error) {
	v, err := s.Get(path)
	if err != nil {
		return 0, err
	}
	return cast.ToFloat64E(v)
}

// Has reports whether a leaf exists at path.
func (s *Store) Has(path Path) bool {
	_, err := s.Get(path)
	return err == nil
}

// ToSymbol returns the symbolic variable bound to path, creating it on
// first use. Calls with the same path return the same symbol, across
// snapshots and restores.
func (s *Store) ToSymbol(path Path) symbolic.Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := path.key()
	if sym, ok := s.symbols[key]; ok {
		return sym
	}
	sym := symbolic.Symbol(len(s.paths))
	s.symbols[key] = sym
	pathCopy := make(Path, len(path))
	copy(pathCopy, path)
	s.paths = append(s.paths, pathCopy)
	return sym
}

// SymbolPath returns the path a symbol is bound to.
func (s *Store) SymbolPath(sym symbolic.Symbol) (Path, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(sym) < 0 || int(sym) >= len(s.paths) {
		return nil, false
	}
	return s.paths[sym], true
}

// Resolve materializes the numeric values of syms, in order, by reading
// their bound paths. This is the once-per-tick bridge from the store to a
// compiled evaluator's input vector.
func (s *Store) Resolve(syms []symbolic.Symbol, out []float64) error {
	if len(out) != len(syms) {
		return fmt.Errorf("blackboard: resolve buffer of %d does not fit %d symbols", len(out), len(syms))
	}
	for i, sym := range syms {
		path, ok := s.SymbolPath(sym)
		if !ok {
			return fmt.Errorf("blackboard: symbol %d was never issued", sym)
		}
		v, err := s.GetFloat(path)
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}

// Snapshot captures the current data tree. Handles may be nested; the
// expected use is stack discipline around a planning universe.
type Snapshot struct {
	root *node
}

// Snapshot returns a structural copy of the store's data. The symbol
// registry is shared, preserving symbol identity across universes.
func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{root: s.root.clone()}
}

// Restore overwrites the store's data with the snapshot. The handle stays
// valid and may be restored again.
func (s *Store) Restore(snap *Snapshot) {
	s.root = snap.root.clone()
}
