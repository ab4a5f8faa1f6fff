package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/NamanBalaji/btget/internal/client"
	"github.com/NamanBalaji/btget/internal/config"
	"github.com/NamanBalaji/btget/internal/logger"
	"github.com/NamanBalaji/btget/internal/repository"
	"github.com/NamanBalaji/btget/pkg/torrent/bencode"
	"github.com/NamanBalaji/btget/pkg/torrent/metainfo"
	"github.com/NamanBalaji/btget/pkg/torrent/storage"
)

const defaultCreatePieceLen = 256 * 1024

var errUsage = errors.New("usage")

// app carries the command's output streams and lazily loaded state.
type app struct {
	stdout io.Writer
	stderr io.Writer

	cfg  *config.Config
	repo repository.Repository
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	logger.Debugf("Running command %s %v", cmd, rest)

	switch cmd {
	case "decode":
		return a.decode(rest)
	case "info":
		return a.info(rest)
	case "peers":
		return a.peers(ctx, rest)
	case "handshake":
		return a.handshake(ctx, rest)
	case "download_piece":
		return a.downloadPiece(ctx, rest)
	case "download":
		return a.download(ctx, rest)
	case "history":
		return a.history(rest)
	case "create":
		return a.create(rest)
	default:
		fmt.Fprintf(a.stderr, "unknown command: %s\n", cmd)
		return errUsage
	}
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a.cfg = cfg

	return cfg, nil
}

// client builds a client. The history database is only opened when
// withHistory is set, so read-only commands never touch it.
func (a *app) client(withHistory bool) (*client.Client, func(), error) {
	cfg, err := a.config()
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {}

	if withHistory && a.repo == nil {
		repo, err := repository.NewBboltRepository(cfg.HistoryDB)
		if err != nil {
			logger.Warnf("Download history disabled: %v", err)
		} else {
			a.repo = repo
			closeFn = func() {
				repo.Close()
				a.repo = nil
			}
		}
	}

	var repo repository.Repository
	if withHistory {
		repo = a.repo
	}

	return client.New(cfg, repo), closeFn, nil
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)

	return fs
}

func (a *app) decode(args []string) error {
	if len(args) != 1 {
		return errUsage
	}

	val, _, err := bencode.Decode([]byte(args[0]))
	if err != nil {
		return err
	}

	out, err := json.Marshal(val)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, string(out))

	return nil
}

func (a *app) info(args []string) error {
	if len(args) != 1 {
		return errUsage
	}

	mi, err := client.LoadTorrent(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Tracker URL: %s\n", mi.Announce)
	fmt.Fprintf(a.stdout, "Length: %d\n", mi.TotalLength())
	fmt.Fprintf(a.stdout, "Info Hash: %s\n", mi.InfoHashHex())
	fmt.Fprintf(a.stdout, "Piece Length: %d\n", mi.Info.PieceLen)
	fmt.Fprintln(a.stdout, "Piece Hashes:")

	for _, h := range mi.PieceHashes() {
		fmt.Fprintln(a.stdout, hex.EncodeToString(h[:]))
	}

	return nil
}

func (a *app) peers(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}

	mi, err := client.LoadTorrent(args[0])
	if err != nil {
		return err
	}

	c, done, err := a.client(false)
	if err != nil {
		return err
	}
	defer done()

	peers, err := c.Peers(ctx, mi)
	if err != nil {
		return err
	}

	for _, p := range peers {
		fmt.Fprintln(a.stdout, p.String())
	}

	return nil
}

func (a *app) handshake(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}

	mi, err := client.LoadTorrent(args[0])
	if err != nil {
		return err
	}

	c, done, err := a.client(false)
	if err != nil {
		return err
	}
	defer done()

	hs, err := c.Handshake(ctx, mi, args[1])
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Peer ID: %s\n", hex.EncodeToString(hs.PeerID[:]))

	return nil
}

func (a *app) downloadPiece(ctx context.Context, args []string) error {
	fs := a.flags("download_piece")
	out := fs.String("o", "", "Output path for the piece")

	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *out == "" || fs.NArg() != 2 {
		return errUsage
	}

	index, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("invalid piece index %q: %w", fs.Arg(1), err)
	}

	mi, err := client.LoadTorrent(fs.Arg(0))
	if err != nil {
		return err
	}

	c, done, err := a.client(false)
	if err != nil {
		return err
	}
	defer done()

	data, err := c.DownloadPiece(ctx, mi, index)
	if err != nil {
		return err
	}

	if err := storage.WriteFile(*out, data); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Piece %d downloaded to %s.\n", index, *out)

	return nil
}

func (a *app) download(ctx context.Context, args []string) error {
	fs := a.flags("download")
	out := fs.String("o", "", "Output path (defaults to the download directory)")
	quiet := fs.Bool("q", false, "Do not show progress")

	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if fs.NArg() != 1 {
		return errUsage
	}

	mi, err := client.LoadTorrent(fs.Arg(0))
	if err != nil {
		return err
	}

	c, done, err := a.client(true)
	if err != nil {
		return err
	}
	defer done()

	path := *out
	if path == "" {
		path = c.DefaultOutput(mi)
	}

	if !*quiet {
		pb := newProgressBar(a.stderr, mi.Info.Name, func(n int) int64 {
			if n >= mi.PieceCount() {
				return mi.TotalLength()
			}

			return int64(n) * mi.Info.PieceLen
		})
		c.OnPiece = pb.update
	}

	if _, err := c.Download(ctx, mi, path); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Downloaded %s to %s.\n", fs.Arg(0), path)

	return nil
}

func (a *app) history(args []string) error {
	if len(args) != 0 {
		return errUsage
	}

	c, done, err := a.client(true)
	if err != nil {
		return err
	}
	defer done()

	records, err := c.History()
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(a.stdout, "No downloads recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPLETED\tNAME\tSIZE\tDURATION\tINFO HASH\tOUTPUT")

	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.CompletedAt.Format(time.DateTime), r.Name, r.Length,
			r.Duration().Round(time.Millisecond), r.InfoHash, r.Output)
	}

	return tw.Flush()
}

func (a *app) create(args []string) error {
	fs := a.flags("create")
	announce := fs.String("announce", "", "Tracker announce URL")
	pieceLen := fs.Int64("piece-length", defaultCreatePieceLen, "Piece length in bytes")
	out := fs.String("o", "", "Output .torrent path (defaults to <file>.torrent)")

	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *announce == "" || fs.NArg() != 1 {
		return errUsage
	}

	src := fs.Arg(0)

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	raw, err := metainfo.Create(*announce, filepath.Base(src), *pieceLen, f)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = src + ".torrent"
	}

	if err := storage.WriteFile(path, raw); err != nil {
		return err
	}

	mi, err := metainfo.Parse(raw)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Created %s (info hash %s).\n", path, mi.InfoHashHex())

	return nil
}
