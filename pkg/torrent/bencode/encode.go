package bencode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrInvalidValue indicates a zero Value, which has no encoding.
var ErrInvalidValue = errors.New("bencode: cannot encode invalid value")

// Encode returns the bencode encoding of v. Dictionary entries are written
// in stored order, so encoding a decoded value reproduces its input. A zero
// Value anywhere inside v fails with ErrInvalidValue and no output.
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// MustEncode is like Encode but panics on an invalid value. It is meant for
// values built in code from the constructors.
func MustEncode(v Value) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}

	return b
}

// Encoder writes bencode values to a stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates a new encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the bencode encoding of v to the stream. Invalid values
// are rejected before anything is written.
func (e *Encoder) Encode(v Value) error {
	if err := validate(v); err != nil {
		return err
	}

	return e.encodeValue(v)
}

func (e *Encoder) encodeValue(v Value) error {
	switch v.kind {
	case KindString:
		return e.encodeBytes(v.str)
	case KindInteger:
		_, err := fmt.Fprintf(e.w, "i%de", v.num)
		return err
	case KindList:
		if _, err := e.w.Write([]byte("l")); err != nil {
			return err
		}

		for _, item := range v.list {
			if err := e.encodeValue(item); err != nil {
				return err
			}
		}

		_, err := e.w.Write([]byte("e"))
		return err
	case KindDict:
		if _, err := e.w.Write([]byte("d")); err != nil {
			return err
		}

		for _, entry := range v.dict {
			if err := e.encodeBytes([]byte(entry.Key)); err != nil {
				return err
			}

			if err := e.encodeValue(entry.Value); err != nil {
				return err
			}
		}

		_, err := e.w.Write([]byte("e"))
		return err
	default:
		return fmt.Errorf("%w of kind %s", ErrInvalidValue, v.kind)
	}
}

func validate(v Value) error {
	switch v.kind {
	case KindString, KindInteger:
		return nil
	case KindList:
		for _, item := range v.list {
			if err := validate(item); err != nil {
				return err
			}
		}

		return nil
	case KindDict:
		for _, entry := range v.dict {
			if err := validate(entry.Value); err != nil {
				return fmt.Errorf("key %q: %w", entry.Key, err)
			}
		}

		return nil
	default:
		return fmt.Errorf("%w of kind %s", ErrInvalidValue, v.kind)
	}
}

func (e *Encoder) encodeBytes(b []byte) error {
	if _, err := fmt.Fprintf(e.w, "%d:", len(b)); err != nil {
		return err
	}

	_, err := e.w.Write(b)

	return err
}

// EncodeString encodes a string to bencode format.
func EncodeString(s string) []byte {
	return append([]byte(strconv.Itoa(len(s))+":"), s...)
}

// EncodeInt encodes an integer to bencode format.
func EncodeInt(i int64) []byte {
	return []byte(fmt.Sprintf("i%de", i))
}
