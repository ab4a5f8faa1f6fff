package metainfo

import (
	"crypto/sha1"
	"errors"
	"io"

	"github.com/NamanBalaji/btget/pkg/torrent/bencode"
)

// Create hashes content read from r in pieceLen chunks and returns the
// bencoded single-file torrent describing it.
func Create(announce, name string, pieceLen int64, r io.Reader) ([]byte, error) {
	if pieceLen <= 0 {
		return nil, errors.New("piece length must be positive")
	}

	var (
		pieces []byte
		length int64
	)

	buf := make([]byte, pieceLen)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			sum := sha1.Sum(buf[:n])
			pieces = append(pieces, sum[:]...)
			length += int64(n)
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}

		if err != nil {
			return nil, err
		}
	}

	info := bencode.NewDict(map[string]bencode.Value{
		"length":       bencode.Int(length),
		"name":         bencode.String(name),
		"piece length": bencode.Int(pieceLen),
		"pieces":       bencode.Bytes(pieces),
	})

	return bencode.Encode(bencode.NewDict(map[string]bencode.Value{
		"announce":   bencode.String(announce),
		"created by": bencode.String("btget"),
		"info":       info,
	}))
}
