package peer

// The handshake is a fixed-length 68-byte record exchanged once when a
// connection is set up: length byte, protocol string, 8 reserved bytes,
// info-hash, peer id.

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	torrentErrors "github.com/NamanBalaji/btget/internal/errors"
)

const (
	// ProtocolID defines the standard BitTorrent protocol identifier.
	ProtocolID = "BitTorrent protocol"
	// ReservedLen is the number of reserved bytes in the handshake.
	ReservedLen = 8
	// IDLen is the size of an info-hash or a peer id.
	IDLen = 20
	// HandshakeLen is the fixed length of a handshake message.
	HandshakeLen = 1 + len(ProtocolID) + ReservedLen + IDLen + IDLen
)

var (
	protocolBytes = []byte(ProtocolID)
	// ErrInvalidHandshake indicates a handshake message of incorrect length.
	ErrInvalidHandshake = errors.New("invalid handshake length")
	// ErrBadProtocol indicates a mismatch in the protocol identifier.
	ErrBadProtocol = errors.New("wrong protocol identifier")
	// ErrShortRead indicates the peer closed the stream before a complete
	// handshake or message arrived.
	ErrShortRead = errors.New("short read")
)

// Handshake represents the structure of the BitTorrent handshake.
// See BEP 3 for details.
type Handshake struct {
	Reserved [ReservedLen]byte
	InfoHash [IDLen]byte
	PeerID   [IDLen]byte
}

// Marshal encodes the handshake into a 68-byte slice. Reserved bytes are
// always sent as zero since no extensions are advertised.
func (h Handshake) Marshal() []byte {
	b := make([]byte, HandshakeLen)
	b[0] = byte(len(protocolBytes))
	copy(b[1:20], protocolBytes)
	// b[20:28] stays zero
	copy(b[28:48], h.InfoHash[:])
	copy(b[48:68], h.PeerID[:])

	return b
}

// Unmarshal decodes a 68-byte handshake. Reserved bytes are kept as sent
// by the peer.
func Unmarshal(b []byte) (Handshake, error) {
	if len(b) != HandshakeLen {
		return Handshake{}, fmt.Errorf("%w: %d bytes", ErrInvalidHandshake, len(b))
	}

	if b[0] != byte(len(protocolBytes)) || !bytes.Equal(b[1:20], protocolBytes) {
		return Handshake{}, ErrBadProtocol
	}

	var h Handshake

	copy(h.Reserved[:], b[20:28])
	copy(h.InfoHash[:], b[28:48])
	copy(h.PeerID[:], b[48:68])

	return h, nil
}

// Perform writes our handshake to rw and reads back exactly one handshake
// from the peer. It does not compare the returned info-hash; callers must.
func Perform(rw io.ReadWriter, infoHash, peerID [IDLen]byte) (Handshake, error) {
	out := Handshake{InfoHash: infoHash, PeerID: peerID}
	if _, err := rw.Write(out.Marshal()); err != nil {
		return Handshake{}, torrentErrors.NewNetworkError(fmt.Errorf("failed to send handshake: %w", err), "")
	}

	return ReadHandshake(rw)
}

// ReadHandshake reads one 68-byte handshake from r.
func ReadHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, HandshakeLen)
	if n, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Handshake{}, torrentErrors.NewNetworkError(
				fmt.Errorf("%w: got %d of %d handshake bytes", ErrShortRead, n, HandshakeLen), "")
		}

		return Handshake{}, torrentErrors.NewNetworkError(fmt.Errorf("failed to read handshake: %w", err), "")
	}

	h, err := Unmarshal(buf)
	if err != nil {
		return Handshake{}, torrentErrors.NewProtocolError(err, "")
	}

	return h, nil
}
