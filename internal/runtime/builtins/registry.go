package builtins

import (
	"fmt"
	"sort"
	"sync"

	"pyvm/internal/errs"
	"pyvm/internal/value"
)

// Env provides host services to builtins.
// This interface is implemented by runtime.Env to avoid import cycles.
type Env interface {
	IO() IO
}

// IO is the output service used by print. Every line is flushed before
// Println returns.
type IO interface {
	Println(string) error
}

// ID is a builtin function identifier.
type ID int

const (
	Print ID = iota
	Len
	Str
	// future builtins go here
)

// Variadic marks a builtin that accepts any number of arguments.
const Variadic = -1

// Meta describes a builtin's name and accepted argument count.
type Meta struct {
	ID    ID
	Name  string
	Arity int // Variadic or the exact number of positional arguments
}

// Builtin represents a complete builtin function with both metadata and
// implementation. The call convention is the native one: ordered arguments
// in, one value out. A zero Value result is reported to the program as None.
type Builtin struct {
	Meta Meta
	// Call executes the builtin. env may be nil for builtins that need no
	// host services.
	Call func(env Env, args []value.Value) (value.Value, error)
}

// CheckArity returns a TypeError when args does not match the metadata.
func (m Meta) CheckArity(args []value.Value) error {
	if m.Arity == Variadic || len(args) == m.Arity {
		return nil
	}
	s := "s"
	if m.Arity == 1 {
		s = ""
	}
	return errs.Typef("%s() takes exactly %d argument%s (%d given)", m.Name, m.Arity, s, len(args))
}

// registry holds all registered builtins with fast lookup indexes.
type registry struct {
	mu sync.RWMutex

	// Index by ID for fast dispatch
	byID map[ID]*Builtin

	// Index by name for scope installation
	byName map[string]*Builtin
}

var globalRegistry = &registry{
	byID:   make(map[ID]*Builtin),
	byName: make(map[string]*Builtin),
}

// Register registers a builtin. This is called automatically by each builtin's init() function.
// Panics if the builtin ID or name is already registered or if metadata is invalid.
func Register(b Builtin) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if b.Meta.Name == "" {
		panic(fmt.Sprintf("builtin ID %d has no name", b.Meta.ID))
	}
	if b.Meta.Arity < Variadic {
		panic(fmt.Sprintf("builtin %s (ID %d): invalid arity %d", b.Meta.Name, b.Meta.ID, b.Meta.Arity))
	}
	if b.Call == nil {
		panic(fmt.Sprintf("builtin %s (ID %d): nil Call", b.Meta.Name, b.Meta.ID))
	}

	if _, exists := globalRegistry.byID[b.Meta.ID]; exists {
		panic(fmt.Sprintf("builtin ID %d (%s) is already registered", b.Meta.ID, b.Meta.Name))
	}
	if _, exists := globalRegistry.byName[b.Meta.Name]; exists {
		panic(fmt.Sprintf("builtin name %q is already registered", b.Meta.Name))
	}

	globalRegistry.byID[b.Meta.ID] = &b
	globalRegistry.byName[b.Meta.Name] = &b
}

// LookupByID finds a builtin by ID. Returns nil if not found.
func LookupByID(id ID) *Builtin {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	return globalRegistry.byID[id]
}

// LookupByName finds a builtin by name. Returns nil if not found.
func LookupByName(name string) *Builtin {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	return globalRegistry.byName[name]
}

// All returns every registered builtin ordered by ID.
func All() []*Builtin {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	result := make([]*Builtin, 0, len(globalRegistry.byID))
	for _, b := range globalRegistry.byID {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Meta.ID < result[j].Meta.ID })
	return result
}
