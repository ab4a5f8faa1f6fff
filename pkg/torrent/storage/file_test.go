package storage_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	torrentErrors "github.com/NamanBalaji/btget/internal/errors"
	"github.com/NamanBalaji/btget/pkg/torrent/metainfo"
	"github.com/NamanBalaji/btget/pkg/torrent/storage"
)

func testTorrent(t *testing.T, data []byte, pieceLen int64) *metainfo.Metainfo {
	t.Helper()

	raw, err := metainfo.Create("http://t/announce", "file.bin", pieceLen, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	mi, err := metainfo.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}

	return mi
}

func testData(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}

	return b
}

func piece(t *testing.T, mi *metainfo.Metainfo, data []byte, index int) []byte {
	t.Helper()

	start, end, err := mi.PieceRange(index)
	if err != nil {
		t.Fatal(err)
	}

	return data[start:end]
}

func TestFile_WriteAndCommit(t *testing.T) {
	data := testData(2500)
	mi := testTorrent(t, data, 1024)
	dest := filepath.Join(t.TempDir(), "nested", "out.bin")

	f, err := storage.Create(mi, dest)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := os.Stat(dest + storage.PartSuffix); err != nil {
		t.Fatalf("temp file missing: %v", err)
	}

	// Out of order on purpose.
	for _, i := range []int{2, 0, 1} {
		if err := f.WritePiece(i, piece(t, mi, data, i)); err != nil {
			t.Fatalf("WritePiece(%d) error = %v", i, err)
		}
	}

	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("destination visible before Commit: %v", err)
	}

	if err := f.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, data) {
		t.Error("committed file content differs")
	}

	if _, err := os.Stat(dest + storage.PartSuffix); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	if err := f.Abort(); err != nil {
		t.Errorf("Abort() after Commit error = %v", err)
	}

	if err := f.WritePiece(0, piece(t, mi, data, 0)); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("WritePiece() after Commit error = %v", err)
	}
}

func TestFile_CommitIncomplete(t *testing.T) {
	data := testData(2500)
	mi := testTorrent(t, data, 1024)
	dest := filepath.Join(t.TempDir(), "out.bin")

	f, err := storage.Create(mi, dest)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Abort()

	f.WritePiece(0, piece(t, mi, data, 0))

	if err := f.Commit(); !errors.Is(err, storage.ErrIncomplete) {
		t.Fatalf("Commit() error = %v, want ErrIncomplete", err)
	}

	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("destination created by failed Commit")
	}
}

func TestFile_VerifyPiece(t *testing.T) {
	data := testData(2048)
	mi := testTorrent(t, data, 1024)
	dest := filepath.Join(t.TempDir(), "out.bin")

	f, err := storage.Create(mi, dest)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Abort()

	if err := f.WritePiece(0, piece(t, mi, data, 0)); err != nil {
		t.Fatal(err)
	}

	if err := f.VerifyPiece(0); err != nil {
		t.Errorf("VerifyPiece(0) error = %v", err)
	}

	bad := append([]byte(nil), piece(t, mi, data, 1)...)
	bad[10] ^= 1

	if err := f.WritePiece(1, bad); err != nil {
		t.Fatal(err)
	}

	err = f.VerifyPiece(1)
	if !errors.Is(err, storage.ErrCorruptOnDisk) || !torrentErrors.IsIntegrityError(err) {
		t.Errorf("VerifyPiece(1) error = %v, want ErrCorruptOnDisk", err)
	}

	if err := f.Commit(); !errors.Is(err, storage.ErrCorruptOnDisk) {
		t.Errorf("Commit() error = %v, want ErrCorruptOnDisk", err)
	}
}

func TestFile_WritePieceErrors(t *testing.T) {
	data := testData(2500)
	mi := testTorrent(t, data, 1024)

	f, err := storage.Create(mi, filepath.Join(t.TempDir(), "out.bin"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Abort()

	tests := []struct {
		name    string
		index   int
		data    []byte
		wantErr error
	}{
		{"out of range", 3, make([]byte, 10), metainfo.ErrIndexOutOfRange},
		{"negative", -1, nil, metainfo.ErrIndexOutOfRange},
		{"short full piece", 0, make([]byte, 1000), storage.ErrPieceSize},
		{"padded last piece", 2, make([]byte, 1024), storage.ErrPieceSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.WritePiece(tt.index, tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("WritePiece() error = %v, want %v", err, tt.wantErr)
			}

			if !torrentErrors.IsIOError(err) {
				t.Errorf("category = %s, want IO", torrentErrors.CategoryOf(err))
			}
		})
	}
}

func TestFile_Abort(t *testing.T) {
	data := testData(100)
	mi := testTorrent(t, data, 64)
	dest := filepath.Join(t.TempDir(), "out.bin")

	f, err := storage.Create(mi, dest)
	if err != nil {
		t.Fatal(err)
	}

	f.WritePiece(0, piece(t, mi, data, 0))

	if err := f.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}

	for _, p := range []string{dest, dest + storage.PartSuffix} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s exists after Abort", p)
		}
	}

	if err := f.Commit(); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Commit() after Abort error = %v", err)
	}
}

func TestFile_EmptyTorrent(t *testing.T) {
	mi := testTorrent(t, nil, 64)
	dest := filepath.Join(t.TempDir(), "empty")

	f, err := storage.Create(mi, dest)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if fi, err := os.Stat(dest); err != nil || fi.Size() != 0 {
		t.Errorf("Stat() = %v, %v", fi, err)
	}
}

func TestWriteFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "sub", "piece-0")

	if err := storage.WriteFile(dest, []byte("piece bytes")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil || string(got) != "piece bytes" {
		t.Errorf("ReadFile() = %q, %v", got, err)
	}

	if _, err := os.Stat(dest + storage.PartSuffix); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	// A directory in the way makes the rename fail.
	blocked := filepath.Join(t.TempDir(), "dir")
	if err := os.MkdirAll(filepath.Join(blocked, "child"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := storage.WriteFile(blocked, []byte("x")); !torrentErrors.IsIOError(err) {
		t.Errorf("WriteFile() over directory error = %v", err)
	}
}
