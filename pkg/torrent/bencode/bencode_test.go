package bencode_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/NamanBalaji/btget/pkg/torrent/bencode"
)

func TestRoundTrip(t *testing.T) {
	values := []bencode.Value{
		bencode.String(""),
		bencode.String("hello world"),
		bencode.Bytes([]byte{0, 1, 2, 0xfe, 0xff}),
		bencode.Int(0),
		bencode.Int(-9223372036854775808),
		bencode.Int(9223372036854775807),
		bencode.List(),
		bencode.List(bencode.List(bencode.List())),
		bencode.Dict(),
		bencode.Dict(
			bencode.Entry{Key: "b", Value: bencode.Int(2)},
			bencode.Entry{Key: "a", Value: bencode.List(bencode.String("x"), bencode.Dict())},
		),
		bencode.NewDict(map[string]bencode.Value{
			"name":   bencode.String("file"),
			"pieces": bencode.Bytes(bytes.Repeat([]byte{0x13}, 40)),
			"nested": bencode.NewDict(map[string]bencode.Value{"k": bencode.Int(1)}),
		}),
	}

	for _, v := range values {
		enc := bencode.MustEncode(v)

		got, rest, err := bencode.Decode(enc)
		if err != nil {
			t.Fatalf("Decode(Encode(%#v)) error = %v", v, err)
		}

		if len(rest) != 0 {
			t.Errorf("Decode(%q) left %q", enc, rest)
		}

		if !got.Equal(v) {
			t.Errorf("round trip of %q gave %#v", enc, got)
		}
	}
}

func TestReencodeIsByteIdentical(t *testing.T) {
	// Keys deliberately out of lexicographic order.
	input := []byte("d4:spaml1:a1:be3:cowi3e1:ad1:zi0e1:y0:ee")

	v, _, err := bencode.Decode(input)
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}

	if out := bencode.MustEncode(v); !bytes.Equal(out, input) {
		t.Errorf("re-encode = %q, want %q", out, input)
	}
}

type trackerReply struct {
	Interval    int           `bencode:"interval"`
	MinInterval int64         `bencode:"min interval"`
	Peers       []byte        `bencode:"peers"`
	Raw         bencode.Value `bencode:"peers"`
	Tags        []string      `bencode:"tags"`
	Extra       map[string]int
	Hash        [4]byte `bencode:"hash"`
	Skipped     string  `bencode:"-"`
	Port        *uint16 `bencode:"port"`
}

func TestUnmarshal(t *testing.T) {
	data := []byte("d8:intervali1800e12:min intervali60e5:peers6:abcdef4:tagsl1:x1:ye5:extrad1:ni7ee4:hash4:wxyz4:porti6881ee")

	var got trackerReply
	if err := bencode.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}

	if got.Interval != 1800 || got.MinInterval != 60 {
		t.Errorf("intervals = %d/%d", got.Interval, got.MinInterval)
	}

	if string(got.Peers) != "abcdef" {
		t.Errorf("Peers = %q", got.Peers)
	}

	if s, _ := got.Raw.AsString(); s != "abcdef" {
		t.Errorf("Raw = %#v", got.Raw)
	}

	if len(got.Tags) != 2 || got.Tags[0] != "x" || got.Tags[1] != "y" {
		t.Errorf("Tags = %v", got.Tags)
	}

	if got.Extra["n"] != 7 {
		t.Errorf("Extra = %v", got.Extra)
	}

	if string(got.Hash[:]) != "wxyz" {
		t.Errorf("Hash = %q", got.Hash)
	}

	if got.Port == nil || *got.Port != 6881 {
		t.Errorf("Port = %v", got.Port)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		target  any
		wantErr error
	}{
		{"int into string", "i1e", new(string), bencode.ErrInvalidType},
		{"negative into uint", "i-1e", new(uint32), bencode.ErrInvalidType},
		{"overflow int8", "i300e", new(int8), bencode.ErrInvalidType},
		{"list into int", "le", new(int), bencode.ErrInvalidType},
		{"dict into slice", "de", new([]int), bencode.ErrInvalidType},
		{"short array", "2:ab", new([4]byte), bencode.ErrInvalidType},
		{"malformed input", "i1", new(int), bencode.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bencode.Unmarshal([]byte(tt.input), tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Unmarshal(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}

	var n int
	if err := bencode.Unmarshal([]byte("i1e"), n); err == nil {
		t.Error("Unmarshal into non-pointer should fail")
	}
}
