package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	torrentErrors "github.com/NamanBalaji/btget/internal/errors"
)

const (
	// DefaultDialTimeout is the timeout used when establishing TCP
	// connections to peers.
	DefaultDialTimeout = 5 * time.Second
	// DefaultReadTimeout is the default per-message read timeout.
	DefaultReadTimeout = 2 * time.Minute
)

// ErrInfoHashMismatch indicates the peer answered the handshake for a
// different torrent.
var ErrInfoHashMismatch = errors.New("info hash mismatch")

// Options tunes a peer connection. Zero fields take the defaults above.
type Options struct {
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}

	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}

	return o
}

// Conn is a handshaken peer connection. Writes are goroutine-safe; reads
// must come from a single goroutine. Cancelling the context it was created
// with closes the underlying socket, unblocking any pending read.
type Conn struct {
	netConn     net.Conn
	r           *Reader
	w           *Writer
	remote      Handshake
	addr        string
	readTimeout time.Duration
	mu          sync.Mutex // protects writes to netConn
	stop        func() bool
}

// Dial establishes a TCP connection to addr and performs the handshake,
// rejecting peers that answer with a different info-hash.
func Dial(ctx context.Context, addr string, infoHash, peerID [IDLen]byte, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	dialer := &net.Dialer{Timeout: opts.DialTimeout}

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, torrentErrors.FromContext(ctx, err, addr)
	}

	return NewConn(ctx, netConn, infoHash, peerID, opts)
}

// NewConn performs the handshake over an already open connection. The
// connection is closed if the handshake fails.
func NewConn(ctx context.Context, netConn net.Conn, infoHash, peerID [IDLen]byte, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	addr := netConn.RemoteAddr().String()

	c := &Conn{
		netConn:     netConn,
		r:           NewReader(netConn),
		w:           NewWriter(netConn),
		addr:        addr,
		readTimeout: opts.ReadTimeout,
	}

	c.stop = context.AfterFunc(ctx, func() { netConn.Close() })

	if err := c.handshake(infoHash, peerID); err != nil {
		c.Close()

		if ctx.Err() != nil {
			return nil, torrentErrors.NewContextError(ctx.Err(), addr)
		}

		return nil, err
	}

	return c, nil
}

func (c *Conn) handshake(infoHash, peerID [IDLen]byte) error {
	if err := c.netConn.SetDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return torrentErrors.NewNetworkError(err, c.addr)
	}

	hs, err := Perform(c.netConn, infoHash, peerID)
	if err != nil {
		var te *torrentErrors.TorrentError
		if errors.As(err, &te) {
			te.Resource = c.addr
		}

		return err
	}

	if hs.InfoHash != infoHash {
		return torrentErrors.NewProtocolError(
			fmt.Errorf("%w: want %x, got %x", ErrInfoHashMismatch, infoHash, hs.InfoHash), c.addr)
	}

	c.remote = hs

	return c.netConn.SetDeadline(time.Time{})
}

// ReadMsg returns the next message. Each read is bounded by the read
// timeout so a silent peer cannot stall the caller forever.
func (c *Conn) ReadMsg() (Message, error) {
	if err := c.netConn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return Message{}, torrentErrors.NewNetworkError(err, c.addr)
	}

	msg, err := c.r.ReadMsg()
	if err != nil {
		return Message{}, c.classify(err)
	}

	return msg, nil
}

// classify wraps a read error in its category.
func (c *Conn) classify(err error) error {
	switch {
	case errors.Is(err, ErrUnknownMessageType), errors.Is(err, ErrMsgTooBig), errors.Is(err, ErrMsgShort):
		return torrentErrors.NewProtocolError(err, c.addr)
	case errors.Is(err, io.EOF):
		return torrentErrors.NewNetworkError(fmt.Errorf("%w: connection closed by peer", ErrShortRead), c.addr)
	default:
		return torrentErrors.NewNetworkError(err, c.addr)
	}
}

// WriteMsg sends a message. This is a low-level method; prefer the
// specific Write* methods defined below.
func (c *Conn) WriteMsg(typ MessageID, payload []byte) error {
	return c.write(func(w *Writer) error { return w.WriteMsg(typ, payload) })
}

// WriteKeepAlive writes a keep-alive message.
func (c *Conn) WriteKeepAlive() error {
	return c.write((*Writer).WriteKeepAlive)
}

// WriteInterested writes an interested message.
func (c *Conn) WriteInterested() error {
	return c.write((*Writer).WriteInterested)
}

// WriteNotInterested writes a not interested message.
func (c *Conn) WriteNotInterested() error {
	return c.write((*Writer).WriteNotInterested)
}

// WriteRequest writes a request message for a piece block.
func (c *Conn) WriteRequest(index, begin, length uint32) error {
	return c.write(func(w *Writer) error { return w.WriteRequest(index, begin, length) })
}

// WriteCancel writes a cancel message for a piece block.
func (c *Conn) WriteCancel(index, begin, length uint32) error {
	return c.write(func(w *Writer) error { return w.WriteCancel(index, begin, length) })
}

func (c *Conn) write(fn func(*Writer) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := fn(c.w); err != nil {
		return torrentErrors.NewNetworkError(err, c.addr)
	}

	return nil
}

// RemotePeerID returns the peer id the remote sent in its handshake.
func (c *Conn) RemotePeerID() [IDLen]byte {
	return c.remote.PeerID
}

// Handshake returns the handshake received from the remote peer.
func (c *Conn) Handshake() Handshake {
	return c.remote
}

// RemoteAddr returns the remote address as host:port.
func (c *Conn) RemoteAddr() string {
	return c.addr
}

// Close shuts down the connection.
func (c *Conn) Close() error {
	c.stop()
	return c.netConn.Close()
}
