package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	defaultPeerID          = "00112233445566778899"
	defaultPort            = 6881
	dialTimeout            = 5 * time.Second
	readTimeout            = 2 * time.Minute
	trackerTimeout         = 30 * time.Second
	strictBlockEcho        = true
	maxDownloadRate        = 0 // unlimited
	numWant                = 50
	defaultHistoryFileName = "history.db"
)

var (
	downloadDir = xdg.UserDirs.Download
	historyDB   = filepath.Join(xdg.DataHome, appName, defaultHistoryFileName)
)
