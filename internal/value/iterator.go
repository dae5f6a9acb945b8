package value

import "pyvm/internal/errs"

// Iterator walks the elements of a list or tuple. It is created by GET_ITER
// and owned by the loop that drives it; nothing else can name it.
type Iterator struct {
	Position int
	Source   Value
}

// Iter returns an iterator over v. Only lists and tuples are iterable;
// an iterator is its own iterator.
func Iter(v Value) (Value, error) {
	switch v.Kind {
	case KindList, KindTuple:
		return Value{Kind: KindIterator, Iter: &Iterator{Source: v}}, nil
	case KindIterator:
		return v, nil
	default:
		return Value{}, errs.Typef("'%s' object is not iterable", v.TypeName())
	}
}

// Next returns the element at the current position and advances past it.
// Once the source is exhausted it keeps returning false without changing
// state.
func (it *Iterator) Next() (Value, bool) {
	if it.Position >= len(it.Source.Elems) {
		return Value{}, false
	}
	v := it.Source.Elems[it.Position]
	it.Position++
	return v, true
}
