package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// EmptyArgsKey is the key derived from an empty argument list.
const EmptyArgsKey = "()"

// DeriveKey builds a deterministic key from a call's arguments. It is the
// default key function of the memoizers.
//
// A single string, number, boolean or nil argument is formatted directly.
// Anything else is encoded as a JSON array of all arguments, with map keys
// sorted. When the list cannot be encoded, for example because an argument
// holds a cycle, a func or a NaN, each argument is encoded on its own and the
// failing ones are replaced by a positional placeholder such as <arg:1>.
// DeriveKey never panics; unencodable arguments only make keys less precise.
func DeriveKey(args ...any) string {
	switch len(args) {
	case 0:
		return EmptyArgsKey
	case 1:
		if key, ok := primitiveKey(args[0]); ok {
			return key
		}
	}

	if data, err := encodeJSON(args); err == nil {
		return string(data)
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		data, err := encodeJSON(arg)
		if err != nil {
			parts[i] = "<arg:" + strconv.Itoa(i) + ">"
			continue
		}
		parts[i] = string(data)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func primitiveKey(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "null", true
	case string:
		data, err := encodeJSON(x)
		if err != nil {
			return "", false
		}
		return string(data), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int8:
		return strconv.FormatInt(int64(x), 10), true
	case int16:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint8:
		return strconv.FormatUint(uint64(x), 10), true
	case uint16:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	}
	return "", false
}

// encodeJSON marshals v without HTML escaping. Panics raised by custom
// marshalers are reported as errors.
func encodeJSON(v any) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, errUnencodable
		}
	}()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

var errUnencodable = errors.New("cache: argument marshaler panicked")
