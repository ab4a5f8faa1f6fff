package storage

// Storage receives verified pieces of a single-file torrent and publishes
// the finished file. Nothing is visible at the destination path until
// Commit succeeds; Abort discards everything written so far.
//
// WritePiece may be called in any order but each piece must be written
// with exactly its full length.
type Storage interface {
	WritePiece(index int, data []byte) error
	Commit() error
	Abort() error
}
