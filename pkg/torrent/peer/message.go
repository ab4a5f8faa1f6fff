package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MessageID identifies a peer wire message.
type MessageID byte

const (
	MsgChoke MessageID = iota
	MsgUnchoke
	MsgInterested
	MsgNotInterested
	MsgHave
	MsgBitfield
	MsgRequest
	MsgPiece
	MsgCancel
	// MsgKeepAlive is a zero-length frame. It never appears on the wire as
	// a type byte.
	MsgKeepAlive MessageID = 0xFF
)

var messageNames = [...]string{
	MsgChoke:         "choke",
	MsgUnchoke:       "unchoke",
	MsgInterested:    "interested",
	MsgNotInterested: "not interested",
	MsgHave:          "have",
	MsgBitfield:      "bitfield",
	MsgRequest:       "request",
	MsgPiece:         "piece",
	MsgCancel:        "cancel",
}

func (id MessageID) String() string {
	if id == MsgKeepAlive {
		return "keep-alive"
	}

	if int(id) < len(messageNames) {
		return messageNames[id]
	}

	return fmt.Sprintf("unknown(%d)", byte(id))
}

var (
	// ErrMsgTooBig indicates a message larger than the permitted 1 MiB.
	ErrMsgTooBig = errors.New("message larger than 1 MiB")
	// ErrMsgShort indicates a payload that is too short to decode the
	// expected fields.
	ErrMsgShort = errors.New("message body too short")
	// ErrUnknownMessageType indicates a type byte outside the nine known messages.
	ErrUnknownMessageType = errors.New("unknown message type")
)

// MaxMsgLen is the maximum allowed frame size (type byte plus payload).
const MaxMsgLen = 1 << 20 // 1 MiB

// Message is a decoded frame. Payload and Block point into the Reader's
// internal buffer and are only valid until the next call to ReadMsg.
// Index, Begin, Length and Block are decoded when the type carries them.
type Message struct {
	Type    MessageID
	Payload []byte
	Index   uint32 // have, request, piece, cancel
	Begin   uint32 // request, piece, cancel
	Length  uint32 // request, cancel
	Block   []byte // piece
}

// Reader decodes length-prefixed frames from a stream. Its buffer grows
// to the largest frame seen and is reused across calls.
type Reader struct {
	r      io.Reader
	prefix [4]byte
	buf    []byte
}

// NewReader creates a new message reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadMsg reads and decodes the next message from the stream. A clean
// close before the length prefix returns io.EOF; a close inside a frame
// returns ErrShortRead.
func (r *Reader) ReadMsg() (Message, error) {
	if n, err := io.ReadFull(r.r, r.prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, fmt.Errorf("%w: got %d of 4 length bytes", ErrShortRead, n)
		}

		return Message{}, err
	}

	l := binary.BigEndian.Uint32(r.prefix[:])
	if l == 0 {
		return Message{Type: MsgKeepAlive}, nil
	}

	if l > MaxMsgLen {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrMsgTooBig, l)
	}

	if cap(r.buf) < int(l) {
		r.buf = make([]byte, l)
	}

	frame := r.buf[:l]
	if n, err := io.ReadFull(r.r, frame); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, fmt.Errorf("%w: got %d of %d frame bytes", ErrShortRead, n, l)
		}

		return Message{}, err
	}

	return decodeFrame(frame)
}

// decodeFrame interprets a frame body whose first byte is the type id.
func decodeFrame(frame []byte) (Message, error) {
	typ := MessageID(frame[0])
	if typ > MsgCancel {
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownMessageType, frame[0])
	}

	msg := Message{Type: typ, Payload: frame[1:]}

	switch typ {
	case MsgHave:
		if len(msg.Payload) != 4 {
			return Message{}, fmt.Errorf("%w: have with %d bytes", ErrMsgShort, len(msg.Payload))
		}

		msg.Index = binary.BigEndian.Uint32(msg.Payload)
	case MsgRequest, MsgCancel:
		if len(msg.Payload) != 12 {
			return Message{}, fmt.Errorf("%w: %s with %d bytes", ErrMsgShort, typ, len(msg.Payload))
		}

		msg.Index = binary.BigEndian.Uint32(msg.Payload[0:4])
		msg.Begin = binary.BigEndian.Uint32(msg.Payload[4:8])
		msg.Length = binary.BigEndian.Uint32(msg.Payload[8:12])
	case MsgPiece:
		index, begin, block, err := ParseBlock(msg.Payload)
		if err != nil {
			return Message{}, err
		}

		msg.Index, msg.Begin, msg.Block = index, begin, block
	}

	return msg, nil
}

// ParseBlock splits a piece payload into its index/offset header and the
// block bytes that follow. The block aliases payload.
func ParseBlock(payload []byte) (index, begin uint32, block []byte, err error) {
	if len(payload) < 8 {
		return 0, 0, nil, fmt.Errorf("%w: piece with %d bytes", ErrMsgShort, len(payload))
	}

	return binary.BigEndian.Uint32(payload[0:4]), binary.BigEndian.Uint32(payload[4:8]), payload[8:], nil
}

// Writer encodes frames onto a stream. Each frame is handed to the
// underlying writer in a single Write call.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter creates a new message writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMsg writes a message with the given type and payload. This is
// a low-level method; prefer the specific Write* methods defined
// below.
func (w *Writer) WriteMsg(typ MessageID, payload []byte) error {
	if typ == MsgKeepAlive {
		return w.WriteKeepAlive()
	}

	l := 1 + len(payload)
	if l > MaxMsgLen {
		return fmt.Errorf("%w: %d bytes", ErrMsgTooBig, l)
	}

	w.buf = binary.BigEndian.AppendUint32(w.buf[:0], uint32(l))
	w.buf = append(w.buf, byte(typ))
	w.buf = append(w.buf, payload...)

	_, err := w.w.Write(w.buf)

	return err
}

// WriteKeepAlive writes a keep-alive message (4 zero bytes).
func (w *Writer) WriteKeepAlive() error {
	var prefix [4]byte

	_, err := w.w.Write(prefix[:])

	return err
}

// WriteChoke writes a choke message.
func (w *Writer) WriteChoke() error {
	return w.WriteMsg(MsgChoke, nil)
}

// WriteUnchoke writes an unchoke message.
func (w *Writer) WriteUnchoke() error {
	return w.WriteMsg(MsgUnchoke, nil)
}

// WriteInterested writes an interested message.
func (w *Writer) WriteInterested() error {
	return w.WriteMsg(MsgInterested, nil)
}

// WriteNotInterested writes a not interested message.
func (w *Writer) WriteNotInterested() error {
	return w.WriteMsg(MsgNotInterested, nil)
}

// WriteHave writes a have message with the given piece index.
func (w *Writer) WriteHave(index uint32) error {
	return w.WriteMsg(MsgHave, binary.BigEndian.AppendUint32(nil, index))
}

// WriteRequest writes a request message for a piece block.
func (w *Writer) WriteRequest(index, begin, length uint32) error {
	return w.WriteMsg(MsgRequest, blockRef(index, begin, length))
}

// WriteCancel writes a cancel message for a piece block.
func (w *Writer) WriteCancel(index, begin, length uint32) error {
	return w.WriteMsg(MsgCancel, blockRef(index, begin, length))
}

// WritePiece writes a piece message carrying block.
func (w *Writer) WritePiece(index, begin uint32, block []byte) error {
	payload := make([]byte, 8, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)

	return w.WriteMsg(MsgPiece, append(payload, block...))
}

// WriteBitfield writes a bitfield message with the given bitfield data.
func (w *Writer) WriteBitfield(bits []byte) error {
	return w.WriteMsg(MsgBitfield, bits)
}

func blockRef(index, begin, length uint32) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:4], index)
	binary.BigEndian.PutUint32(b[4:8], begin)
	binary.BigEndian.PutUint32(b[8:12], length)

	return b
}
