package peer_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/NamanBalaji/btget/pkg/torrent/peer"
)

func TestWriteRead(t *testing.T) {
	tests := []struct {
		name      string
		writeFunc func(*peer.Writer) error
		verify    func(*testing.T, peer.Message)
	}{
		{
			name:      "keep-alive",
			writeFunc: (*peer.Writer).WriteKeepAlive,
			verify: func(t *testing.T, msg peer.Message) {
				if msg.Type != peer.MsgKeepAlive || msg.Payload != nil {
					t.Errorf("got %+v, want keep-alive", msg)
				}
			},
		},
		{
			name:      "choke",
			writeFunc: (*peer.Writer).WriteChoke,
			verify: func(t *testing.T, msg peer.Message) {
				if msg.Type != peer.MsgChoke || len(msg.Payload) != 0 {
					t.Errorf("got %+v, want choke", msg)
				}
			},
		},
		{
			name:      "unchoke",
			writeFunc: (*peer.Writer).WriteUnchoke,
			verify: func(t *testing.T, msg peer.Message) {
				if msg.Type != peer.MsgUnchoke {
					t.Errorf("expected unchoke, got %s", msg.Type)
				}
			},
		},
		{
			name:      "interested",
			writeFunc: (*peer.Writer).WriteInterested,
			verify: func(t *testing.T, msg peer.Message) {
				if msg.Type != peer.MsgInterested {
					t.Errorf("expected interested, got %s", msg.Type)
				}
			},
		},
		{
			name:      "not-interested",
			writeFunc: (*peer.Writer).WriteNotInterested,
			verify: func(t *testing.T, msg peer.Message) {
				if msg.Type != peer.MsgNotInterested {
					t.Errorf("expected not interested, got %s", msg.Type)
				}
			},
		},
		{
			name:      "have",
			writeFunc: func(w *peer.Writer) error { return w.WriteHave(12345) },
			verify: func(t *testing.T, msg peer.Message) {
				if msg.Type != peer.MsgHave || msg.Index != 12345 {
					t.Errorf("got %+v, want have 12345", msg)
				}
			},
		},
		{
			name:      "bitfield-data",
			writeFunc: func(w *peer.Writer) error { return w.WriteBitfield([]byte{0xAA, 0x55, 0xFF}) },
			verify: func(t *testing.T, msg peer.Message) {
				if msg.Type != peer.MsgBitfield || !bytes.Equal(msg.Payload, []byte{0xAA, 0x55, 0xFF}) {
					t.Errorf("got %+v", msg)
				}
			},
		},
		{
			name:      "request",
			writeFunc: func(w *peer.Writer) error { return w.WriteRequest(100, 16384, 8192) },
			verify: func(t *testing.T, msg peer.Message) {
				if msg.Type != peer.MsgRequest || msg.Index != 100 || msg.Begin != 16384 || msg.Length != 8192 {
					t.Errorf("got %+v, want request (100,16384,8192)", msg)
				}
			},
		},
		{
			name:      "piece",
			writeFunc: func(w *peer.Writer) error { return w.WritePiece(50, 8192, []byte("test data")) },
			verify: func(t *testing.T, msg peer.Message) {
				if msg.Type != peer.MsgPiece || msg.Index != 50 || msg.Begin != 8192 {
					t.Errorf("got %+v, want piece (50,8192)", msg)
				}

				if !bytes.Equal(msg.Block, []byte("test data")) {
					t.Errorf("block = %q", msg.Block)
				}
			},
		},
		{
			name:      "cancel",
			writeFunc: func(w *peer.Writer) error { return w.WriteCancel(200, 32768, 4096) },
			verify: func(t *testing.T, msg peer.Message) {
				if msg.Type != peer.MsgCancel || msg.Index != 200 || msg.Begin != 32768 || msg.Length != 4096 {
					t.Errorf("got %+v, want cancel (200,32768,4096)", msg)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.writeFunc(peer.NewWriter(&buf)); err != nil {
				t.Fatalf("write error = %v", err)
			}

			msg, err := peer.NewReader(&buf).ReadMsg()
			if err != nil {
				t.Fatalf("ReadMsg() error = %v", err)
			}

			tt.verify(t, msg)
		})
	}
}

func TestWireFormat(t *testing.T) {
	tests := []struct {
		name       string
		writeFunc  func(*peer.Writer) error
		expectWire []byte
	}{
		{"keep-alive", (*peer.Writer).WriteKeepAlive, []byte{0, 0, 0, 0}},
		{"interested", (*peer.Writer).WriteInterested, []byte{0, 0, 0, 1, 2}},
		{"have", func(w *peer.Writer) error { return w.WriteHave(0x01020304) }, []byte{0, 0, 0, 5, 4, 1, 2, 3, 4}},
		{
			"request",
			func(w *peer.Writer) error { return w.WriteRequest(1, 0x4000, 0x4000) },
			[]byte{0, 0, 0, 13, 6, 0, 0, 0, 1, 0, 0, 0x40, 0, 0, 0, 0x40, 0},
		},
		{
			"piece",
			func(w *peer.Writer) error { return w.WritePiece(2, 3, []byte{0xAB}) },
			[]byte{0, 0, 0, 10, 7, 0, 0, 0, 2, 0, 0, 0, 3, 0xAB},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.writeFunc(peer.NewWriter(&buf)); err != nil {
				t.Fatalf("write error = %v", err)
			}

			if !bytes.Equal(buf.Bytes(), tt.expectWire) {
				t.Errorf("wire = %v, want %v", buf.Bytes(), tt.expectWire)
			}
		})
	}
}

func TestReadMsg_Sequence(t *testing.T) {
	var buf bytes.Buffer

	w := peer.NewWriter(&buf)
	w.WriteBitfield([]byte{0xFF})
	w.WriteKeepAlive()
	w.WriteUnchoke()
	w.WritePiece(0, 0, bytes.Repeat([]byte{7}, 16384))

	r := peer.NewReader(&buf)
	for _, want := range []peer.MessageID{peer.MsgBitfield, peer.MsgKeepAlive, peer.MsgUnchoke, peer.MsgPiece} {
		msg, err := r.ReadMsg()
		if err != nil {
			t.Fatalf("ReadMsg() error = %v", err)
		}

		if msg.Type != want {
			t.Fatalf("got %s, want %s", msg.Type, want)
		}
	}

	if _, err := r.ReadMsg(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadMsg() at end = %v, want io.EOF", err)
	}
}

func TestReadMsg_Errors(t *testing.T) {
	tests := []struct {
		name    string
		wire    []byte
		wantErr error
	}{
		{"port message", []byte{0, 0, 0, 3, 9, 0x1a, 0xe1}, peer.ErrUnknownMessageType},
		{"extended message", []byte{0, 0, 0, 1, 20}, peer.ErrUnknownMessageType},
		{"truncated prefix", []byte{0, 0}, peer.ErrShortRead},
		{"truncated body", []byte{0, 0, 0, 5, 4, 0}, peer.ErrShortRead},
		{"missing body", []byte{0, 0, 0, 1}, peer.ErrShortRead},
		{"too big", []byte{0, 0x10, 0, 1}, peer.ErrMsgTooBig},
		{"short have", []byte{0, 0, 0, 2, 4, 0}, peer.ErrMsgShort},
		{"short request", []byte{0, 0, 0, 5, 6, 0, 0, 0, 1}, peer.ErrMsgShort},
		{"short piece", []byte{0, 0, 0, 5, 7, 0, 0, 0, 1}, peer.ErrMsgShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := peer.NewReader(bytes.NewReader(tt.wire)).ReadMsg()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadMsg() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadMsg_MaxSizeAccepted(t *testing.T) {
	var buf bytes.Buffer
	if err := peer.NewWriter(&buf).WriteBitfield(make([]byte, peer.MaxMsgLen-1)); err != nil {
		t.Fatalf("WriteBitfield() error = %v", err)
	}

	msg, err := peer.NewReader(&buf).ReadMsg()
	if err != nil {
		t.Fatalf("ReadMsg() error = %v", err)
	}

	if len(msg.Payload) != peer.MaxMsgLen-1 {
		t.Errorf("payload = %d bytes", len(msg.Payload))
	}

	if err := peer.NewWriter(io.Discard).WriteBitfield(make([]byte, peer.MaxMsgLen)); !errors.Is(err, peer.ErrMsgTooBig) {
		t.Errorf("oversized write error = %v, want ErrMsgTooBig", err)
	}
}

func TestParseBlock(t *testing.T) {
	index, begin, block, err := peer.ParseBlock([]byte{0, 0, 0, 3, 0, 0, 0x40, 0, 'h', 'i'})
	if err != nil {
		t.Fatalf("ParseBlock() error = %v", err)
	}

	if index != 3 || begin != 16384 || string(block) != "hi" {
		t.Errorf("ParseBlock() = %d, %d, %q", index, begin, block)
	}

	if _, _, _, err := peer.ParseBlock(make([]byte, 7)); !errors.Is(err, peer.ErrMsgShort) {
		t.Errorf("ParseBlock(7 bytes) error = %v, want ErrMsgShort", err)
	}
}

func TestMessageID_String(t *testing.T) {
	tests := map[peer.MessageID]string{
		peer.MsgChoke:     "choke",
		peer.MsgPiece:     "piece",
		peer.MsgCancel:    "cancel",
		peer.MsgKeepAlive: "keep-alive",
		peer.MessageID(9): "unknown(9)",
	}

	for id, want := range tests {
		if got := id.String(); got != want {
			t.Errorf("MessageID(%d).String() = %q, want %q", byte(id), got, want)
		}
	}
}
