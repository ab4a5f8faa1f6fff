package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NamanBalaji/btget/internal/logger"
)

const usage = `usage: btget [-debug] <command> [arguments]

commands:
  decode <bencoded value>                 print a bencoded value as JSON
  info <file.torrent>                     show torrent metadata
  peers <file.torrent>                    list peers from the tracker
  handshake <file.torrent> <ip:port>      handshake with a peer
  download_piece -o <out> <file.torrent> <index>
                                          download and verify one piece
  download [-o <out>] <file.torrent>      download the whole file
  history                                 list completed downloads
  create -announce <url> [-piece-length n] -o <out.torrent> <file>
                                          create a torrent for a file
`

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	err := logger.InitLogging(*debug, logger.DefaultPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logging: %v\n", err)
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{stdout: os.Stdout, stderr: os.Stderr}

	if err := a.run(ctx, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}

		logger.Errorf("Command failed: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
