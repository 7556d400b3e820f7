package gatt

// ValueKind identifies which member of Value is populated
type ValueKind int

const (
	StringValue ValueKind = iota
	BoolValue
	BytesValue
	StringsValue
	PathValue
	PathsValue
)

func (k ValueKind) String() string {
	switch k {
	case StringValue:
		return "string"
	case BoolValue:
		return "bool"
	case BytesValue:
		return "bytes"
	case StringsValue:
		return "strings"
	case PathValue:
		return "path"
	case PathsValue:
		return "paths"
	default:
		return "unknown"
	}
}

// Value is a closed variant used for attribute property dictionaries.
// Host adapters translate it into their own typed representation.
type Value struct {
	kind  ValueKind
	str   string
	b     bool
	bytes []byte
	strs  []string
}

func String(s string) Value { return Value{kind: StringValue, str: s} }

func Bool(b bool) Value { return Value{kind: BoolValue, b: b} }

func Bytes(b []byte) Value {
	return Value{kind: BytesValue, bytes: append([]byte(nil), b...)}
}

func Strings(s []string) Value {
	return Value{kind: StringsValue, strs: append([]string(nil), s...)}
}

// Path holds an attribute path. It is kept apart from String because
// host stacks such as D-Bus type object paths differently from strings.
func Path(p string) Value { return Value{kind: PathValue, str: p} }

func Paths(p []string) Value {
	return Value{kind: PathsValue, strs: append([]string(nil), p...)}
}

func (v Value) Kind() ValueKind { return v.kind }

// AsString returns the string payload of a String or Path value
func (v Value) AsString() (string, bool) {
	if v.kind != StringValue && v.kind != PathValue {
		return "", false
	}
	return v.str, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != BoolValue {
		return false, false
	}
	return v.b, true
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != BytesValue {
		return nil, false
	}
	return append([]byte(nil), v.bytes...), true
}

// AsStrings returns the payload of a Strings or Paths value
func (v Value) AsStrings() ([]string, bool) {
	if v.kind != StringsValue && v.kind != PathsValue {
		return nil, false
	}
	return append([]string(nil), v.strs...), true
}

type dictEntry struct {
	key   string
	value Value
}

// Dict is an insertion-ordered string-keyed property bag
type Dict struct {
	entries []dictEntry
}

func NewDict() *Dict {
	return &Dict{}
}

// Set replaces the value for key in place, or appends it if the key is new
func (d *Dict) Set(key string, value Value) *Dict {
	for i := range d.entries {
		if d.entries[i].key == key {
			d.entries[i].value = value
			return d
		}
	}
	d.entries = append(d.entries, dictEntry{key: key, value: value})
	return d
}

func (d *Dict) Get(key string) (Value, bool) {
	for _, e := range d.entries {
		if e.key == key {
			return e.value, true
		}
	}
	return Value{}, false
}

func (d *Dict) Keys() []string {
	keys := make([]string, 0, len(d.entries))
	for _, e := range d.entries {
		keys = append(keys, e.key)
	}
	return keys
}

func (d *Dict) Len() int {
	return len(d.entries)
}

// Range calls fn for each entry in insertion order until fn returns false
func (d *Dict) Range(fn func(key string, value Value) bool) {
	for _, e := range d.entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}
