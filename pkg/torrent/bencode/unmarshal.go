package bencode

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrInvalidType is returned when a decoded value cannot be stored in the
// requested Go type.
var ErrInvalidType = errors.New("invalid type for bencode")

var valueType = reflect.TypeOf(Value{})

// Unmarshal decodes the first bencode value in data into v, which must be a
// non-nil pointer. Struct fields are matched by their `bencode` tag, or by
// the field name with a lowercased first letter. A field of type Value
// receives the raw decoded value.
func Unmarshal(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("bencode: Unmarshal requires non-nil pointer")
	}

	val, _, err := Decode(data)
	if err != nil {
		return err
	}

	return unmarshalValue(val, rv.Elem())
}

// UnmarshalValue stores an already decoded value into v.
func UnmarshalValue(val Value, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("bencode: UnmarshalValue requires non-nil pointer")
	}

	return unmarshalValue(val, rv.Elem())
}

// unmarshalValue assigns a decoded value to a reflect.Value.
func unmarshalValue(val Value, rv reflect.Value) error {
	if rv.Type() == valueType {
		rv.Set(reflect.ValueOf(val))
		return nil
	}

	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}

		return unmarshalValue(val, rv.Elem())
	}

	switch val.kind {
	case KindInteger:
		return unmarshalInt(val.num, rv)
	case KindString:
		return unmarshalBytes(val.str, rv)
	case KindList:
		return unmarshalList(val.list, rv)
	case KindDict:
		return unmarshalDict(val.dict, rv)
	default:
		return fmt.Errorf("%w: cannot unmarshal %s into %v", ErrInvalidType, val.kind, rv.Type())
	}
}

func unmarshalInt(val int64, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.OverflowInt(val) {
			return fmt.Errorf("%w: %d overflows %v", ErrInvalidType, val, rv.Type())
		}

		rv.SetInt(val)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if val < 0 || rv.OverflowUint(uint64(val)) {
			return fmt.Errorf("%w: cannot unmarshal %d into %v", ErrInvalidType, val, rv.Type())
		}

		rv.SetUint(uint64(val))
		return nil
	case reflect.Interface:
		rv.Set(reflect.ValueOf(val))
		return nil
	default:
		return fmt.Errorf("%w: cannot unmarshal int into %v", ErrInvalidType, rv.Type())
	}
}

func unmarshalBytes(val []byte, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.String:
		rv.SetString(string(val))
		return nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			rv.SetBytes(append([]byte(nil), val...))
			return nil
		}

		return fmt.Errorf("%w: cannot unmarshal bytes into %v", ErrInvalidType, rv.Type())
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 && rv.Len() == len(val) {
			reflect.Copy(rv, reflect.ValueOf(val))
			return nil
		}

		return fmt.Errorf("%w: cannot unmarshal %d bytes into %v", ErrInvalidType, len(val), rv.Type())
	case reflect.Interface:
		rv.Set(reflect.ValueOf(val))
		return nil
	default:
		return fmt.Errorf("%w: cannot unmarshal bytes into %v", ErrInvalidType, rv.Type())
	}
}

func unmarshalList(val []Value, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Slice:
		slice := reflect.MakeSlice(rv.Type(), len(val), len(val))
		for i, v := range val {
			if err := unmarshalValue(v, slice.Index(i)); err != nil {
				return err
			}
		}

		rv.Set(slice)
		return nil
	case reflect.Interface:
		rv.Set(reflect.ValueOf(List(val...)))
		return nil
	default:
		return fmt.Errorf("%w: cannot unmarshal list into %v", ErrInvalidType, rv.Type())
	}
}

func unmarshalDict(val []Entry, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: map key must be string, got %v", ErrInvalidType, rv.Type().Key())
		}

		m := reflect.MakeMapWithSize(rv.Type(), len(val))
		for _, e := range val {
			elem := reflect.New(rv.Type().Elem()).Elem()
			if err := unmarshalValue(e.Value, elem); err != nil {
				return err
			}

			m.SetMapIndex(reflect.ValueOf(e.Key).Convert(rv.Type().Key()), elem)
		}

		rv.Set(m)
		return nil
	case reflect.Struct:
		return unmarshalStruct(val, rv)
	case reflect.Interface:
		rv.Set(reflect.ValueOf(Dict(val...)))
		return nil
	default:
		return fmt.Errorf("%w: cannot unmarshal dict into %v", ErrInvalidType, rv.Type())
	}
}

// unmarshalStruct assigns dictionary entries to struct fields.
func unmarshalStruct(val []Entry, rv reflect.Value) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}

		key := field.Tag.Get("bencode")
		if key == "-" {
			continue
		}

		if key == "" {
			key = strings.ToLower(field.Name[:1]) + field.Name[1:]
		}

		for _, e := range val {
			if e.Key != key {
				continue
			}

			if err := unmarshalValue(e.Value, rv.Field(i)); err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}

			break
		}
	}

	return nil
}
