package bencode

import (
	"errors"
	"fmt"
	"strconv"
)

// Decoder errors.
var (
	ErrUnexpectedEOF   = errors.New("unexpected EOF")
	ErrUnrecognizedTag = errors.New("unrecognized tag")
	ErrInvalidKeyType  = errors.New("dictionary key is not a string")
	ErrDuplicateKey    = errors.New("duplicate dictionary key")
	ErrInvalidInteger  = errors.New("invalid integer")
	ErrInvalidLength   = errors.New("invalid string length")
	ErrTooDeep         = errors.New("nesting too deep")
)

// maxDepth bounds list/dict nesting so hostile input cannot exhaust the stack.
const maxDepth = 512

// Decode decodes exactly one value from the front of data and returns it
// together with the unconsumed remainder. Trailing bytes are not an error;
// callers that need strict input must check rest themselves.
func Decode(data []byte) (Value, []byte, error) {
	d := &decoder{data: data}

	v, err := d.decodeValue(0)
	if err != nil {
		return Value{}, nil, err
	}

	return v, d.data[d.pos:], nil
}

// decoder walks a byte slice, tracking the read position.
type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) peek() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, ErrUnexpectedEOF
	}

	return d.data[d.pos], nil
}

// decodeValue decodes a single bencode value, dispatching on its tag.
func (d *decoder) decodeValue(depth int) (Value, error) {
	b, err := d.peek()
	if err != nil {
		return Value{}, err
	}

	switch {
	case b == 'i':
		return d.decodeInt()
	case b == 'l':
		return d.decodeList(depth + 1)
	case b == 'd':
		return d.decodeDict(depth + 1)
	case b >= '0' && b <= '9':
		return d.decodeString()
	default:
		return Value{}, fmt.Errorf("%w %q at offset %d", ErrUnrecognizedTag, b, d.pos)
	}
}

// decodeInt decodes i<digits>e.
func (d *decoder) decodeInt() (Value, error) {
	start := d.pos + 1 // skip 'i'

	end := start
	for end < len(d.data) && d.data[end] != 'e' {
		end++
	}

	if end >= len(d.data) {
		return Value{}, ErrUnexpectedEOF
	}

	n, err := strconv.ParseInt(string(d.data[start:end]), 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w %q at offset %d", ErrInvalidInteger, d.data[start:end], start)
	}

	d.pos = end + 1

	return Int(n), nil
}

// decodeString decodes <len>:<bytes>.
func (d *decoder) decodeString() (Value, error) {
	start := d.pos

	colon := start
	for colon < len(d.data) && d.data[colon] != ':' {
		if d.data[colon] < '0' || d.data[colon] > '9' {
			return Value{}, fmt.Errorf("%w at offset %d", ErrInvalidLength, colon)
		}
		colon++
	}

	if colon >= len(d.data) {
		return Value{}, ErrUnexpectedEOF
	}

	length, err := strconv.ParseInt(string(d.data[start:colon]), 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w at offset %d: %v", ErrInvalidLength, start, err)
	}

	body := colon + 1
	if length > int64(len(d.data)-body) {
		return Value{}, fmt.Errorf("%w: string of %d bytes at offset %d", ErrUnexpectedEOF, length, start)
	}

	end := body + int(length)
	str := make([]byte, length)
	copy(str, d.data[body:end])
	d.pos = end

	return Bytes(str), nil
}

// decodeList decodes l<values>e.
func (d *decoder) decodeList(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, ErrTooDeep
	}

	d.pos++ // 'l'

	list := []Value{}
	for {
		b, err := d.peek()
		if err != nil {
			return Value{}, err
		}

		if b == 'e' {
			d.pos++
			break
		}

		v, err := d.decodeValue(depth)
		if err != nil {
			return Value{}, err
		}

		list = append(list, v)
	}

	return List(list...), nil
}

// decodeDict decodes d<key><value>...e keeping the parsed key order.
func (d *decoder) decodeDict(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, ErrTooDeep
	}

	d.pos++ // 'd'

	entries := []Entry{}
	seen := make(map[string]struct{})

	for {
		b, err := d.peek()
		if err != nil {
			return Value{}, err
		}

		if b == 'e' {
			d.pos++
			break
		}

		keyPos := d.pos

		k, err := d.decodeValue(depth)
		if err != nil {
			return Value{}, fmt.Errorf("decoding dict key: %w", err)
		}

		key, ok := k.AsString()
		if !ok {
			return Value{}, fmt.Errorf("%w: got %s at offset %d", ErrInvalidKeyType, k.Kind(), keyPos)
		}

		if _, dup := seen[key]; dup {
			return Value{}, fmt.Errorf("%w %q", ErrDuplicateKey, key)
		}
		seen[key] = struct{}{}

		val, err := d.decodeValue(depth)
		if err != nil {
			return Value{}, fmt.Errorf("decoding dict value for key %q: %w", key, err)
		}

		entries = append(entries, Entry{Key: key, Value: val})
	}

	return Dict(entries...), nil
}
