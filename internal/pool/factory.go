package pool

import "reflect"

// DefaultFactory builds new instances of T. Pointer types get a freshly
// allocated element, everything else the zero value.
func DefaultFactory[T any]() func() T {
	typ := reflect.TypeFor[T]()
	if typ.Kind() == reflect.Pointer {
		elem := typ.Elem()
		return func() T {
			return reflect.New(elem).Interface().(T)
		}
	}
	return func() T {
		var zero T
		return zero
	}
}

// SliceFactory returns empty slices with the given capacity.
func SliceFactory[E any](capacity int) func() []E {
	return func() []E {
		return make([]E, 0, capacity)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
