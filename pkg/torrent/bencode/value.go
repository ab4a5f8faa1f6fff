package bencode

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// Kind identifies which of the four bencode types a Value holds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindInteger
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	default:
		return "invalid"
	}
}

// Entry is a single key/value pair of a dictionary.
type Entry struct {
	Key   string
	Value Value
}

// Value is a decoded bencode value. Dictionaries keep their entries in the
// order they were parsed (or built) so that re-encoding a decoded value
// reproduces the original bytes.
type Value struct {
	kind Kind
	str  []byte
	num  int64
	list []Value
	dict []Entry
}

// Bytes returns a byte string value.
func Bytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}

	return Value{kind: KindString, str: b}
}

// String returns a byte string value holding s.
func String(s string) Value {
	return Value{kind: KindString, str: []byte(s)}
}

// Int returns an integer value.
func Int(n int64) Value {
	return Value{kind: KindInteger, num: n}
}

// List returns a list value holding items in order.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}

	return Value{kind: KindList, list: items}
}

// Dict returns a dictionary value that keeps entries in the given order.
func Dict(entries ...Entry) Value {
	if entries == nil {
		entries = []Entry{}
	}

	return Value{kind: KindDict, dict: entries}
}

// NewDict returns a dictionary with keys in lexicographic order, the
// canonical bencode layout.
func NewDict(m map[string]Value) Value {
	entries := make([]Entry, 0, len(m))
	for k, v := range m {
		entries = append(entries, Entry{Key: k, Value: v})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	return Dict(entries...)
}

// Kind reports the type held by v.
func (v Value) Kind() Kind {
	return v.kind
}

// AsBytes returns the raw bytes of a string value.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindString {
		return nil, false
	}

	return v.str, true
}

// AsString returns a string value as a Go string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}

	return string(v.str), true
}

// AsInt returns the integer held by v.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}

	return v.num, true
}

// AsList returns the items of a list value.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}

	return v.list, true
}

// AsDict returns the entries of a dictionary value in stored order.
func (v Value) AsDict() ([]Entry, bool) {
	if v.kind != KindDict {
		return nil, false
	}

	return v.dict, true
}

// Get looks up key in a dictionary value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindDict {
		return Value{}, false
	}

	for _, e := range v.dict {
		if e.Key == key {
			return e.Value, true
		}
	}

	return Value{}, false
}

// Equal reports whether v and o hold the same bencode value, including
// dictionary entry order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case KindString:
		return bytes.Equal(v.str, o.str)
	case KindInteger:
		return v.num == o.num
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}

		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}

		return true
	case KindDict:
		if len(v.dict) != len(o.dict) {
			return false
		}

		for i := range v.dict {
			if v.dict[i].Key != o.dict[i].Key || !v.dict[i].Value.Equal(o.dict[i].Value) {
				return false
			}
		}

		return true
	default:
		return true
	}
}

// MarshalJSON renders v as JSON: strings become JSON strings, integers
// numbers, lists arrays and dictionaries objects in stored key order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindString:
		b, err := json.Marshal(string(v.str))
		if err != nil {
			return err
		}

		buf.Write(b)
	case KindInteger:
		buf.WriteString(strconv.FormatInt(v.num, 10))
	case KindList:
		buf.WriteByte('[')

		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}

			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}

		buf.WriteByte(']')
	case KindDict:
		buf.WriteByte('{')

		for i, e := range v.dict {
			if i > 0 {
				buf.WriteByte(',')
			}

			k, err := json.Marshal(e.Key)
			if err != nil {
				return err
			}

			buf.Write(k)
			buf.WriteByte(':')

			if err := e.Value.writeJSON(buf); err != nil {
				return err
			}
		}

		buf.WriteByte('}')
	default:
		buf.WriteString("null")
	}

	return nil
}
