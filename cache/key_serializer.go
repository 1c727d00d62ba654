package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// defaultKeySerializer implements KeySerializer using reflection-based serialization.
// Unlike DeriveKey it accepts values JSON cannot encode: funcs and channels are
// keyed by address, and reference cycles are cut with a cycle marker.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds a cache key from method name and args using reflection.
func (s *defaultKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, method)

	for _, arg := range args {
		parts = append(parts, s.serializeArg(arg))
	}

	return strings.Join(parts, KeySeparator)
}

func (s *defaultKeySerializer) serializeArg(v any) string {
	w := &keyWalker{visiting: make(map[visit]struct{})}
	return w.value(v)
}

// visit identifies a reference currently being walked.
type visit struct {
	ptr uintptr
	typ reflect.Type
}

type keyWalker struct {
	visiting map[visit]struct{}
}

// enter marks rv as being walked and reports false when it already is, which
// means the value refers back to itself.
func (w *keyWalker) enter(rv reflect.Value) (leave func(), ok bool) {
	v := visit{ptr: rv.Pointer(), typ: rv.Type()}
	if _, seen := w.visiting[v]; seen {
		return nil, false
	}
	w.visiting[v] = struct{}{}
	return func() { delete(w.visiting, v) }, true
}

func (w *keyWalker) value(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rt.Kind() {
	case reflect.Func:
		if rv.IsNil() {
			return "func:nil"
		}
		return fmt.Sprintf("func:%p", v)

	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)

	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		leave, ok := w.enter(rv)
		if !ok {
			return "cycle:" + rt.String()
		}
		defer leave()
		return w.value(rv.Elem().Interface())

	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		if rv.Len() > 0 {
			leave, ok := w.enter(rv)
			if !ok {
				return "cycle:" + rt.String()
			}
			defer leave()
		}
		return fmt.Sprintf("slice[%d]:{%s}", rv.Len(), strings.Join(w.elements(rv), ","))

	case reflect.Array:
		return fmt.Sprintf("array[%d]:{%s}", rv.Len(), strings.Join(w.elements(rv), ","))

	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		leave, ok := w.enter(rv)
		if !ok {
			return "cycle:" + rt.String()
		}
		defer leave()
		return w.mapValue(rv)

	case reflect.Struct:
		return w.structValue(rv, rt)

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return fmt.Sprintf("%v", v)
	}

	return w.jsonFallback(v)
}

func (w *keyWalker) elements(rv reflect.Value) []string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = w.value(rv.Index(i).Interface())
	}
	return parts
}

// mapValue serializes map entries sorted by their serialized key.
func (w *keyWalker) mapValue(rv reflect.Value) string {
	type pair struct{ key, value string }

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, pair{
			key:   w.value(iter.Key().Interface()),
			value: w.value(iter.Value().Interface()),
		})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.key + "=" + p.value
	}
	return fmt.Sprintf("map[%d]:{%s}", len(parts), strings.Join(parts, ","))
}

// structValue serializes exported fields as name:value pairs.
func (w *keyWalker) structValue(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldValue := rv.Field(i)
		if !fieldValue.CanInterface() {
			continue
		}

		parts = append(parts, field.Name+":"+w.value(fieldValue.Interface()))
	}

	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

// jsonFallback handles the remaining kinds (interfaces and unsafe pointers).
func (w *keyWalker) jsonFallback(v any) string {
	data, err := encodeJSON(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}

// hashedKeySerializer keeps keys short by replacing the serialized arguments
// with their xxhash digest.
type hashedKeySerializer struct {
	inner KeySerializer
}

// NewHashedKeySerializer returns a KeySerializer producing keys of the form
// method::<16 hex digits>. The digest covers the default serialization of the
// arguments, so two calls share a key exactly when the default serializer
// would give them the same key, barring hash collisions.
func NewHashedKeySerializer() KeySerializer {
	return &hashedKeySerializer{inner: NewDefaultKeySerializer()}
}

func (s *hashedKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}

	full := s.inner.SerializeKey("", args...)
	return fmt.Sprintf("%s%s%016x", method, KeySeparator, xxhash.Sum64String(full))
}
