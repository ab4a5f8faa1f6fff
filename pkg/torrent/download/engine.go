package download

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	torrentErrors "github.com/NamanBalaji/btget/internal/errors"
	"github.com/NamanBalaji/btget/pkg/torrent/metainfo"
	"github.com/NamanBalaji/btget/pkg/torrent/peer"
)

// BlockSize is the largest block ever requested from a peer.
const BlockSize = 16384

var (
	// ErrUnexpectedMessage indicates the peer sent a message out of sequence.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrBlockMismatch indicates a piece reply that does not echo the request.
	ErrBlockMismatch = errors.New("block does not match request")
	// ErrPieceHashMismatch indicates a downloaded piece failed SHA-1 verification.
	ErrPieceHashMismatch = errors.New("piece hash mismatch")
	// ErrPieceNotAvailable indicates the peer's bitfield lacks the piece.
	ErrPieceNotAvailable = errors.New("peer does not have piece")
)

// MessageConn is the part of a peer connection the engine drives.
type MessageConn interface {
	ReadMsg() (peer.Message, error)
	WriteInterested() error
	WriteRequest(index, begin, length uint32) error
}

// Config controls engine behaviour.
type Config struct {
	// StrictEcho rejects piece replies whose index, offset or length differ
	// from the outstanding request. When false the mismatch is reported
	// through Logf and the block is kept.
	StrictEcho bool
	// MaxRate caps the download rate in bytes per second. Zero is unlimited.
	MaxRate int64
	// CheckBitfield rejects a peer whose Bitfield lacks the requested piece
	// before Interested is sent. When false the Bitfield payload is ignored.
	CheckBitfield bool
	// Logf receives diagnostic messages. May be nil.
	Logf func(format string, args ...any)
}

// Engine downloads single pieces from a peer, one block at a time.
type Engine struct {
	strict        bool
	checkBitfield bool
	limiter       *rate.Limiter
	logf          func(format string, args ...any)
}

// NewEngine creates an engine from cfg.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		strict:        cfg.StrictEcho,
		checkBitfield: cfg.CheckBitfield,
		limiter:       rate.NewLimiter(rate.Inf, BlockSize),
		logf:          cfg.Logf,
	}

	if cfg.MaxRate > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRate), int(max(cfg.MaxRate, BlockSize)))
	}

	if e.logf == nil {
		e.logf = func(string, ...any) {}
	}

	return e
}

// pieceState is the transient state of one piece download.
type pieceState struct {
	index int
	start int64
	end   int64
	buf   []byte
	next  int64 // offset within the piece of the next block
}

func (s *pieceState) size() int64 {
	return s.end - s.start
}

func (s *pieceState) done() bool {
	return s.next >= s.size()
}

// blockLen returns the length of the next block to request.
func (s *pieceState) blockLen() int64 {
	return min(BlockSize, s.size()-s.next)
}

// DownloadPiece runs the per-piece exchange on a freshly handshaken
// connection: wait for Bitfield, send Interested, wait for Unchoke, then
// request blocks one at a time until the piece is complete. The Bitfield
// only marks the start of the exchange unless CheckBitfield is set. The
// assembled piece is returned only if its SHA-1 matches the metainfo.
func (e *Engine) DownloadPiece(ctx context.Context, conn MessageConn, mi *metainfo.Metainfo, index int) ([]byte, error) {
	expected, err := mi.PieceHash(index)
	if err != nil {
		return nil, torrentErrors.NewParseError(err, mi.Info.Name)
	}

	start, end, _ := mi.PieceRange(index)
	state := &pieceState{
		index: index,
		start: start,
		end:   end,
		buf:   make([]byte, 0, end-start),
	}

	msg, err := e.expect(ctx, conn, peer.MsgBitfield)
	if err != nil {
		return nil, err
	}

	if e.checkBitfield && !peer.Bitfield(msg.Payload).Has(index) {
		return nil, torrentErrors.NewProtocolError(fmt.Errorf("%w %d", ErrPieceNotAvailable, index), "")
	}

	if err := conn.WriteInterested(); err != nil {
		return nil, e.wrap(ctx, err)
	}

	if _, err := e.expect(ctx, conn, peer.MsgUnchoke); err != nil {
		return nil, err
	}

	for !state.done() {
		if err := e.fetchBlock(ctx, conn, state); err != nil {
			return nil, err
		}
	}

	if sum := sha1.Sum(state.buf); !bytes.Equal(sum[:], expected[:]) {
		err := torrentErrors.NewIntegrityError(
			fmt.Errorf("%w: piece %d: want %x, got %x", ErrPieceHashMismatch, index, expected, sum), mi.Info.Name)

		return nil, torrentErrors.WithDetails(err, map[string]any{"piece": index, "length": len(state.buf)})
	}

	return state.buf, nil
}

// fetchBlock requests the next block of s and appends the reply.
func (e *Engine) fetchBlock(ctx context.Context, conn MessageConn, s *pieceState) error {
	length := s.blockLen()

	if err := e.limiter.WaitN(ctx, int(length)); err != nil {
		return torrentErrors.NewContextError(err, "")
	}

	if err := conn.WriteRequest(uint32(s.index), uint32(s.next), uint32(length)); err != nil {
		return e.wrap(ctx, err)
	}

	msg, err := e.expect(ctx, conn, peer.MsgPiece)
	if err != nil {
		return err
	}

	if int(msg.Index) != s.index || int64(msg.Begin) != s.next || int64(len(msg.Block)) != length {
		mismatch := fmt.Errorf("%w: requested (%d, %d, %d), got (%d, %d, %d)",
			ErrBlockMismatch, s.index, s.next, length, msg.Index, msg.Begin, len(msg.Block))
		if e.strict {
			return torrentErrors.NewProtocolError(mismatch, "")
		}

		e.logf("Tolerating %v", mismatch)
	}

	s.buf = append(s.buf, msg.Block...)
	s.next += length

	return nil
}

// expect reads the next non keep-alive message and requires it to be want.
func (e *Engine) expect(ctx context.Context, conn MessageConn, want peer.MessageID) (peer.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return peer.Message{}, torrentErrors.NewContextError(err, "")
		}

		msg, err := conn.ReadMsg()
		if err != nil {
			return peer.Message{}, e.wrap(ctx, err)
		}

		if msg.Type == peer.MsgKeepAlive {
			continue
		}

		if msg.Type != want {
			return peer.Message{}, torrentErrors.NewProtocolError(
				fmt.Errorf("%w: want %s, got %s", ErrUnexpectedMessage, want, msg.Type), "")
		}

		return msg, nil
	}
}

// wrap categorizes a connection error, preferring the context's error
// when the context ended the connection.
func (e *Engine) wrap(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return torrentErrors.NewContextError(ctx.Err(), "")
	}

	if torrentErrors.CategoryOf(err) != torrentErrors.CategoryUnknown {
		return err
	}

	return torrentErrors.NewNetworkError(err, "")
}
