package value

import "pyvm/internal/errs"

// Dict is an insertion-ordered mapping. Only None, int and str values are
// hashable.
type Dict struct {
	entries []DictEntry
	index   map[dictKey]int
}

type DictEntry struct {
	Key   Value
	Value Value
}

type dictKey struct {
	kind Kind
	i    int32
	s    string
}

func NewDict() *Dict {
	return &Dict{index: make(map[dictKey]int)}
}

func keyOf(v Value) (dictKey, error) {
	switch v.Kind {
	case KindNone:
		return dictKey{kind: KindNone}, nil
	case KindInt:
		return dictKey{kind: KindInt, i: v.Int}, nil
	case KindString:
		return dictKey{kind: KindString, s: v.Str}, nil
	default:
		return dictKey{}, errs.Typef("unhashable type: '%s'", v.TypeName())
	}
}

// Set binds key to val. A key that is already present keeps its position.
func (d *Dict) Set(key, val Value) error {
	k, err := keyOf(key)
	if err != nil {
		return err
	}
	if i, ok := d.index[k]; ok {
		d.entries[i].Value = val
		return nil
	}
	d.index[k] = len(d.entries)
	d.entries = append(d.entries, DictEntry{Key: key, Value: val})
	return nil
}

func (d *Dict) Get(key Value) (Value, bool, error) {
	k, err := keyOf(key)
	if err != nil {
		return Value{}, false, err
	}
	i, ok := d.index[k]
	if !ok {
		return Value{}, false, nil
	}
	return d.entries[i].Value, true, nil
}

func (d *Dict) Len() int {
	return len(d.entries)
}

// Items returns the entries in insertion order. The slice must not be
// modified.
func (d *Dict) Items() []DictEntry {
	return d.entries
}
