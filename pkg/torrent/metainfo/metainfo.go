package metainfo

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"

	torrentErrors "github.com/NamanBalaji/btget/internal/errors"
	"github.com/NamanBalaji/btget/pkg/torrent/bencode"
)

// HashLen is the size of a SHA-1 piece hash or info-hash.
const HashLen = sha1.Size

var (
	// ErrMalformedTorrent indicates the torrent file is not a usable metainfo dictionary.
	ErrMalformedTorrent = errors.New("malformed torrent")
	// ErrIndexOutOfRange indicates a piece index outside [0, PieceCount).
	ErrIndexOutOfRange = errors.New("piece index out of range")
)

// Metainfo is the parsed content of a single-file .torrent. It is built
// once by Parse and never mutated afterwards.
type Metainfo struct {
	Announce string
	Info     InfoDict
	InfoHash [HashLen]byte
}

// InfoDict is the 'info' dictionary of a torrent. Pieces holds the
// concatenated 20-byte SHA-1 digest of every piece.
type InfoDict struct {
	Name     string
	PieceLen int64
	Length   int64
	Pieces   []byte
}

// Parse decodes a torrent file, validates the fields this client needs and
// computes the info-hash over the info dictionary re-encoded in the order it
// was parsed. On any failure no Metainfo is returned.
func Parse(data []byte) (*Metainfo, error) {
	root, _, err := bencode.Decode(data)
	if err != nil {
		return nil, malformed("%w", err)
	}

	if root.Kind() != bencode.KindDict {
		return nil, malformed("root is a %s, not a dictionary", root.Kind())
	}

	announce, err := stringField(root, "announce")
	if err != nil {
		return nil, err
	}

	infoVal, ok := root.Get("info")
	if !ok {
		return nil, malformed("missing required field %q", "info")
	}

	if infoVal.Kind() != bencode.KindDict {
		return nil, malformed("info is a %s, not a dictionary", infoVal.Kind())
	}

	info, err := parseInfo(infoVal)
	if err != nil {
		return nil, err
	}

	raw, err := bencode.Encode(infoVal)
	if err != nil {
		return nil, malformed("%w", err)
	}

	return &Metainfo{
		Announce: announce,
		Info:     info,
		InfoHash: sha1.Sum(raw),
	}, nil
}

func parseInfo(v bencode.Value) (InfoDict, error) {
	var info InfoDict

	if _, ok := v.Get("files"); ok {
		if _, single := v.Get("length"); !single {
			return info, malformed("multi-file torrents are not supported")
		}
	}

	name, err := stringField(v, "name")
	if err != nil {
		return info, err
	}

	pieceLen, err := intField(v, "piece length")
	if err != nil {
		return info, err
	}

	length, err := intField(v, "length")
	if err != nil {
		return info, err
	}

	piecesVal, ok := v.Get("pieces")
	if !ok {
		return info, malformed("missing required field %q", "pieces")
	}

	pieces, ok := piecesVal.AsBytes()
	if !ok {
		return info, malformed("field %q is a %s, not a string", "pieces", piecesVal.Kind())
	}

	info = InfoDict{
		Name:     name,
		PieceLen: pieceLen,
		Length:   length,
		Pieces:   pieces,
	}

	return info, info.validate()
}

// validate performs structural checks on the info dictionary.
func (i InfoDict) validate() error {
	if i.PieceLen <= 0 {
		return malformed("invalid piece length %d", i.PieceLen)
	}

	if i.Length < 0 {
		return malformed("negative length %d", i.Length)
	}

	if len(i.Pieces)%HashLen != 0 {
		return malformed("pieces string length %d not multiple of %d", len(i.Pieces), HashLen)
	}

	want := (i.Length + i.PieceLen - 1) / i.PieceLen
	if got := int64(len(i.Pieces) / HashLen); got != want {
		return malformed("%d piece hashes for %d bytes at piece length %d, want %d", got, i.Length, i.PieceLen, want)
	}

	return nil
}

// PieceCount returns the number of pieces in this torrent.
func (m *Metainfo) PieceCount() int {
	return len(m.Info.Pieces) / HashLen
}

// TotalLength returns the size of the file in bytes.
func (m *Metainfo) TotalLength() int64 {
	return m.Info.Length
}

// PieceHash returns the expected SHA-1 digest of piece index.
func (m *Metainfo) PieceHash(index int) ([HashLen]byte, error) {
	var hash [HashLen]byte
	if index < 0 || index >= m.PieceCount() {
		return hash, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, m.PieceCount())
	}

	copy(hash[:], m.Info.Pieces[index*HashLen:(index+1)*HashLen])

	return hash, nil
}

// PieceHashes returns all piece hashes in order.
func (m *Metainfo) PieceHashes() [][HashLen]byte {
	hashes := make([][HashLen]byte, m.PieceCount())
	for i := range hashes {
		copy(hashes[i][:], m.Info.Pieces[i*HashLen:(i+1)*HashLen])
	}

	return hashes
}

// PieceRange returns the absolute byte range [start, end) covered by piece
// index. The last piece ends at the total length instead of being padded.
func (m *Metainfo) PieceRange(index int) (start, end int64, err error) {
	if index < 0 || index >= m.PieceCount() {
		return 0, 0, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, m.PieceCount())
	}

	start = int64(index) * m.Info.PieceLen

	return start, min(start+m.Info.PieceLen, m.Info.Length), nil
}

// PieceSize returns the length in bytes of piece index, or 0 when the index
// is out of range.
func (m *Metainfo) PieceSize(index int) int64 {
	start, end, err := m.PieceRange(index)
	if err != nil {
		return 0
	}

	return end - start
}

// InfoHashHex returns the info-hash as lowercase hex.
func (m *Metainfo) InfoHashHex() string {
	return hex.EncodeToString(m.InfoHash[:])
}

func malformed(format string, args ...any) error {
	return torrentErrors.NewParseError(fmt.Errorf("%w: "+format, append([]any{ErrMalformedTorrent}, args...)...), "torrent")
}

func stringField(d bencode.Value, key string) (string, error) {
	v, ok := d.Get(key)
	if !ok {
		return "", malformed("missing required field %q", key)
	}

	s, ok := v.AsString()
	if !ok {
		return "", malformed("field %q is a %s, not a string", key, v.Kind())
	}

	return s, nil
}

func intField(d bencode.Value, key string) (int64, error) {
	v, ok := d.Get(key)
	if !ok {
		return 0, malformed("missing required field %q", key)
	}

	n, ok := v.AsInt()
	if !ok {
		return 0, malformed("field %q is a %s, not an integer", key, v.Kind())
	}

	return n, nil
}
