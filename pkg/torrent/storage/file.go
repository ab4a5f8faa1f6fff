package storage

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	torrentErrors "github.com/NamanBalaji/btget/internal/errors"
	"github.com/NamanBalaji/btget/pkg/torrent/metainfo"
)

// PartSuffix is appended to the destination path while a download is in progress.
const PartSuffix = ".part"

// hashBufferSize defines the buffer size used when re-hashing a piece from disk.
const hashBufferSize = 32 * 1024 // 32 KiB

var (
	// ErrPieceSize indicates a piece written with the wrong length.
	ErrPieceSize = errors.New("piece size mismatch")
	// ErrIncomplete indicates Commit was called before every piece was written.
	ErrIncomplete = errors.New("download incomplete")
	// ErrCorruptOnDisk indicates a piece read back from disk fails its hash.
	ErrCorruptOnDisk = errors.New("piece corrupt on disk")
	// ErrClosed indicates use of a committed or aborted file.
	ErrClosed = errors.New("storage closed")
)

// File implements Storage with a sparse temp file next to the destination.
type File struct {
	mu      sync.Mutex
	f       *os.File
	mi      *metainfo.Metainfo
	path    string
	tmpPath string
	written []bool
	closed  bool
}

var _ Storage = (*File)(nil)

// Create opens <path>.part sized to the torrent's total length. Missing
// parent directories are created.
func Create(mi *metainfo.Metainfo, path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, torrentErrors.NewIOError(err, path)
	}

	tmpPath := path + PartSuffix

	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, torrentErrors.NewIOError(err, tmpPath)
	}

	// Reserve the full size so pieces can land in any order.
	if err := f.Truncate(mi.TotalLength()); err != nil {
		f.Close()
		os.Remove(tmpPath)

		return nil, torrentErrors.NewIOError(err, tmpPath)
	}

	return &File{
		f:       f,
		mi:      mi,
		path:    path,
		tmpPath: tmpPath,
		written: make([]bool, mi.PieceCount()),
	}, nil
}

// WritePiece stores data at the piece's offset in the temp file.
func (s *File) WritePiece(index int, data []byte) error {
	start, end, err := s.mi.PieceRange(index)
	if err != nil {
		return torrentErrors.NewIOError(err, s.tmpPath)
	}

	if int64(len(data)) != end-start {
		return torrentErrors.NewIOError(
			fmt.Errorf("%w: piece %d is %d bytes, got %d", ErrPieceSize, index, end-start, len(data)), s.tmpPath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return torrentErrors.NewIOError(ErrClosed, s.tmpPath)
	}

	if _, err := s.f.WriteAt(data, start); err != nil {
		return torrentErrors.NewIOError(err, s.tmpPath)
	}

	s.written[index] = true

	return nil
}

// VerifyPiece re-reads piece index from disk and checks it against its
// hash without loading the whole piece into memory.
func (s *File) VerifyPiece(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.verifyPiece(index)
}

func (s *File) verifyPiece(index int) error {
	if s.closed {
		return torrentErrors.NewIOError(ErrClosed, s.tmpPath)
	}

	expected, err := s.mi.PieceHash(index)
	if err != nil {
		return torrentErrors.NewIOError(err, s.tmpPath)
	}

	start, end, _ := s.mi.PieceRange(index)

	h := sha1.New()
	if _, err := io.CopyBuffer(h, io.NewSectionReader(s.f, start, end-start), make([]byte, hashBufferSize)); err != nil {
		return torrentErrors.NewIOError(err, s.tmpPath)
	}

	var got [metainfo.HashLen]byte
	copy(got[:], h.Sum(nil))

	if got != expected {
		return torrentErrors.NewIntegrityError(fmt.Errorf("%w: piece %d", ErrCorruptOnDisk, index), s.tmpPath)
	}

	return nil
}

// Commit verifies every piece on disk, syncs the temp file and renames it
// to the destination path. On failure the temp file is left for Abort.
func (s *File) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return torrentErrors.NewIOError(ErrClosed, s.tmpPath)
	}

	for i, ok := range s.written {
		if !ok {
			return torrentErrors.NewIOError(fmt.Errorf("%w: piece %d missing", ErrIncomplete, i), s.tmpPath)
		}

		if err := s.verifyPiece(i); err != nil {
			return err
		}
	}

	if err := s.f.Sync(); err != nil {
		return torrentErrors.NewIOError(err, s.tmpPath)
	}

	if err := s.f.Close(); err != nil {
		return torrentErrors.NewIOError(err, s.tmpPath)
	}

	s.closed = true

	if err := os.Rename(s.tmpPath, s.path); err != nil {
		os.Remove(s.tmpPath)
		return torrentErrors.NewIOError(err, s.path)
	}

	return nil
}

// Abort closes and removes the temp file. It is a no-op after Commit.
func (s *File) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.f.Close()

	if err := os.Remove(s.tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return torrentErrors.NewIOError(err, s.tmpPath)
	}

	return nil
}

// Path returns the destination path.
func (s *File) Path() string {
	return s.path
}

// WriteFile writes data to path through a temp file and rename, so a
// failed write never leaves a partial file at path.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return torrentErrors.NewIOError(err, path)
	}

	tmpPath := path + PartSuffix

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		os.Remove(tmpPath)
		return torrentErrors.NewIOError(err, tmpPath)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return torrentErrors.NewIOError(err, path)
	}

	return nil
}
