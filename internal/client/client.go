package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/btget/internal/config"
	torrentErrors "github.com/NamanBalaji/btget/internal/errors"
	"github.com/NamanBalaji/btget/internal/logger"
	"github.com/NamanBalaji/btget/internal/repository"
	"github.com/NamanBalaji/btget/pkg/torrent/download"
	"github.com/NamanBalaji/btget/pkg/torrent/metainfo"
	"github.com/NamanBalaji/btget/pkg/torrent/peer"
	"github.com/NamanBalaji/btget/pkg/torrent/storage"
	"github.com/NamanBalaji/btget/pkg/torrent/tracker"
)

// ErrNoPeers is returned when the tracker lists no peers.
var ErrNoPeers = errors.New("tracker returned no peers")

// Client runs the user-facing operations against one torrent at a time.
type Client struct {
	cfg    *config.Config
	engine *download.Engine
	repo   repository.Repository

	// OnPiece, when set, is called after each verified piece is stored.
	OnPiece func(index, total int)
}

// New creates a client. repo may be nil, in which case downloads are not
// recorded.
func New(cfg *config.Config, repo repository.Repository) *Client {
	return &Client{
		cfg: cfg,
		engine: download.NewEngine(download.Config{
			StrictEcho:    cfg.Peer.Strict(),
			MaxRate:       cfg.Peer.MaxDownloadRate,
			CheckBitfield: cfg.Peer.CheckBitfield,
			Logf:          logger.Warnf,
		}),
		repo: repo,
	}
}

// LoadTorrent reads and parses a .torrent file.
func LoadTorrent(path string) (*metainfo.Metainfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, torrentErrors.NewIOError(err, path)
	}

	mi, err := metainfo.Parse(data)
	if err != nil {
		var te *torrentErrors.TorrentError
		if errors.As(err, &te) {
			te.Resource = path
		}

		return nil, err
	}

	return mi, nil
}

// Peers announces to the torrent's tracker and returns the peers it lists.
func (c *Client) Peers(ctx context.Context, mi *metainfo.Metainfo) ([]tracker.Peer, error) {
	req := &tracker.AnnounceRequest{
		InfoHash: mi.InfoHash,
		PeerID:   c.cfg.PeerIDBytes(),
		Port:     uint16(c.cfg.Port),
		Left:     mi.TotalLength(),
		NumWant:  c.cfg.Tracker.NumWant,
	}

	logger.Infof("Announcing %s to %s", mi.InfoHashHex(), mi.Announce)

	resp, err := tracker.NewHTTPClient(mi.Announce, c.cfg.Tracker.Timeout).Announce(ctx, req)
	if err != nil {
		logger.Errorf("Announce to %s failed: %v", mi.Announce, err)
		return nil, err
	}

	if resp.WarningMessage != "" {
		logger.Warnf("Tracker warning: %s", resp.WarningMessage)
	}

	peers, err := tracker.ParsePeers(resp)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Tracker returned %d peers, interval %ds", len(peers), resp.Interval)

	return peers, nil
}

// Handshake connects to addr and returns the peer's handshake. The
// connection is closed before returning.
func (c *Client) Handshake(ctx context.Context, mi *metainfo.Metainfo, addr string) (peer.Handshake, error) {
	conn, err := c.dial(ctx, mi, addr)
	if err != nil {
		return peer.Handshake{}, err
	}
	defer conn.Close()

	return conn.Handshake(), nil
}

// DownloadPiece fetches one verified piece from the first peer the
// tracker returns.
func (c *Client) DownloadPiece(ctx context.Context, mi *metainfo.Metainfo, index int) ([]byte, error) {
	if _, err := mi.PieceHash(index); err != nil {
		return nil, torrentErrors.NewParseError(err, mi.Info.Name)
	}

	addr, err := c.pickPeer(ctx, mi)
	if err != nil {
		return nil, err
	}

	return c.downloadPieceFrom(ctx, mi, addr, index)
}

// Download fetches every piece in order from a single peer, each over a
// new connection, and publishes the file at out only when all pieces
// verified. A fetch goroutine hands pieces to a writer goroutine so disk
// writes overlap the next network round trip.
func (c *Client) Download(ctx context.Context, mi *metainfo.Metainfo, out string) (*repository.Record, error) {
	started := time.Now()

	addr, err := c.pickPeer(ctx, mi)
	if err != nil {
		return nil, err
	}

	file, err := storage.Create(mi, out)
	if err != nil {
		return nil, err
	}

	type piece struct {
		index int
		data  []byte
	}

	total := mi.PieceCount()
	pieces := make(chan piece, 1)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(pieces)

		for i := range total {
			data, err := c.downloadPieceFrom(gctx, mi, addr, i)
			if err != nil {
				return err
			}

			select {
			case pieces <- piece{index: i, data: data}:
			case <-gctx.Done():
				return torrentErrors.NewContextError(gctx.Err(), out)
			}
		}

		return nil
	})

	g.Go(func() error {
		for p := range pieces {
			if err := file.WritePiece(p.index, p.data); err != nil {
				return err
			}

			logger.Debugf("Stored piece %d/%d", p.index+1, total)

			if c.OnPiece != nil {
				c.OnPiece(p.index, total)
			}
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		if abortErr := file.Abort(); abortErr != nil {
			logger.Warnf("Failed to remove partial file: %v", abortErr)
		}

		logger.Errorf("Download of %s failed: %v", mi.Info.Name, err)

		return nil, err
	}

	if err := file.Commit(); err != nil {
		file.Abort()
		return nil, err
	}

	record := &repository.Record{
		ID:          uuid.New(),
		Name:        mi.Info.Name,
		InfoHash:    mi.InfoHashHex(),
		Announce:    mi.Announce,
		Output:      absPath(out),
		Length:      mi.TotalLength(),
		Pieces:      total,
		Peer:        addr,
		StartedAt:   started,
		CompletedAt: time.Now(),
	}

	logger.Infof("Downloaded %s (%d bytes) to %s in %s", mi.Info.Name, mi.TotalLength(), out, record.Duration())

	if c.repo != nil {
		if err := c.repo.Save(record); err != nil {
			logger.Warnf("Failed to record download %s: %v", record.ID, err)
		}
	}

	return record, nil
}

// History returns completed downloads, newest first.
func (c *Client) History() ([]*repository.Record, error) {
	if c.repo == nil {
		return nil, nil
	}

	return c.repo.FindAll()
}

// DefaultOutput returns where a download is written when no path is given.
func (c *Client) DefaultOutput(mi *metainfo.Metainfo) string {
	return filepath.Join(c.cfg.DownloadDir, filepath.Base(mi.Info.Name))
}

func (c *Client) pickPeer(ctx context.Context, mi *metainfo.Metainfo) (string, error) {
	peers, err := c.Peers(ctx, mi)
	if err != nil {
		return "", err
	}

	if len(peers) == 0 {
		return "", torrentErrors.NewNetworkError(ErrNoPeers, mi.Announce)
	}

	return peers[0].String(), nil
}

func (c *Client) dial(ctx context.Context, mi *metainfo.Metainfo, addr string) (*peer.Conn, error) {
	logger.Debugf("Dialing %s", addr)

	conn, err := peer.Dial(ctx, addr, mi.InfoHash, c.cfg.PeerIDBytes(), peer.Options{
		DialTimeout: c.cfg.Peer.DialTimeout,
		ReadTimeout: c.cfg.Peer.ReadTimeout,
	})
	if err != nil {
		logger.Errorf("Handshake with %s failed: %v", addr, err)
		return nil, err
	}

	logger.Debugf("Handshake with %s done, remote id %x", addr, conn.RemotePeerID())

	return conn, nil
}

// downloadPieceFrom opens a dedicated connection for one piece.
func (c *Client) downloadPieceFrom(ctx context.Context, mi *metainfo.Metainfo, addr string, index int) ([]byte, error) {
	conn, err := c.dial(ctx, mi, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := c.engine.DownloadPiece(ctx, conn, mi, index)
	if err != nil {
		var te *torrentErrors.TorrentError
		if errors.As(err, &te) && te.Resource == "" {
			te.Resource = addr
		}

		return nil, fmt.Errorf("piece %d: %w", index, err)
	}

	logger.Debugf("Piece %d verified (%d bytes) from %s", index, len(data), addr)

	return data, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}

	return p
}
