package vm

import "pyvm/internal/value"

// Scope maps names to values. The parent is consulted only when a lookup
// misses; stores and deletes always act on the scope itself.
type Scope struct {
	vars   map[string]value.Value
	parent *Scope
}

func NewScope(parent *Scope) *Scope {
	return &Scope{
		vars:   make(map[string]value.Value),
		parent: parent,
	}
}

func (s *Scope) Lookup(name string) (value.Value, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return value.Value{}, false
}

// Store binds name in this scope, shadowing any outer binding.
func (s *Scope) Store(name string, v value.Value) {
	s.vars[name] = v
}

// Delete removes a binding from this scope and reports whether it existed.
func (s *Scope) Delete(name string) bool {
	if _, ok := s.vars[name]; !ok {
		return false
	}
	delete(s.vars, name)
	return true
}

// Len returns the number of bindings held directly by this scope.
func (s *Scope) Len() int {
	return len(s.vars)
}
