package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	appName        = "btget"
	configFileName = "btget"
)

// ErrInvalidPeerID indicates a configured peer id that is not 20 bytes.
var ErrInvalidPeerID = errors.New("peer id must be exactly 20 bytes")

// Config holds the configuration options for the application.
type Config struct {
	PeerID      string         `yaml:"peerId,omitempty"`
	Port        int            `yaml:"port,omitempty"`
	DownloadDir string         `yaml:"dir,omitempty"`
	HistoryDB   string         `yaml:"historyDb,omitempty"`
	Peer        *PeerConfig    `yaml:"peer,omitempty"`
	Tracker     *TrackerConfig `yaml:"tracker,omitempty"`
}

// PeerConfig holds options for peer connections and piece transfer.
type PeerConfig struct {
	DialTimeout time.Duration `yaml:"dialTimeout,omitempty"`
	ReadTimeout time.Duration `yaml:"readTimeout,omitempty"`
	// StrictBlockEcho is a pointer so an explicit false in the file is
	// distinguishable from an absent key.
	StrictBlockEcho *bool `yaml:"strictBlockEcho,omitempty"`
	MaxDownloadRate int64 `yaml:"maxDownloadRate,omitempty"`
	// CheckBitfield refuses peers whose bitfield lacks the wanted piece.
	CheckBitfield bool `yaml:"checkBitfield,omitempty"`
}

// TrackerConfig holds options for tracker announces.
type TrackerConfig struct {
	Timeout time.Duration `yaml:"timeout,omitempty"`
	NumWant int           `yaml:"numWant,omitempty"`
}

// Path returns the location of the configuration file.
func Path() string {
	return filepath.Join(xdg.ConfigHome, configFileName)
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	defaults := DefaultConfig()

	b, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", Path(), err)
	}

	peerCfg := zeroOr(cfg.Peer, defaults.Peer)
	trackerCfg := zeroOr(cfg.Tracker, defaults.Tracker)

	merged := &Config{
		PeerID:      zeroOr(cfg.PeerID, defaults.PeerID),
		Port:        zeroOr(cfg.Port, defaults.Port),
		DownloadDir: zeroOr(cfg.DownloadDir, defaults.DownloadDir),
		HistoryDB:   zeroOr(cfg.HistoryDB, defaults.HistoryDB),
		Peer: &PeerConfig{
			DialTimeout:     zeroOr(peerCfg.DialTimeout, defaults.Peer.DialTimeout),
			ReadTimeout:     zeroOr(peerCfg.ReadTimeout, defaults.Peer.ReadTimeout),
			StrictBlockEcho: zeroOr(peerCfg.StrictBlockEcho, defaults.Peer.StrictBlockEcho),
			MaxDownloadRate: zeroOr(peerCfg.MaxDownloadRate, defaults.Peer.MaxDownloadRate),
			CheckBitfield:   peerCfg.CheckBitfield,
		},
		Tracker: &TrackerConfig{
			Timeout: zeroOr(trackerCfg.Timeout, defaults.Tracker.Timeout),
			NumWant: zeroOr(trackerCfg.NumWant, defaults.Tracker.NumWant),
		},
	}

	if err := merged.Validate(); err != nil {
		return nil, err
	}

	return merged, nil
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	strict := strictBlockEcho

	return Config{
		PeerID:      defaultPeerID,
		Port:        defaultPort,
		DownloadDir: downloadDir,
		HistoryDB:   historyDB,
		Peer: &PeerConfig{
			DialTimeout:     dialTimeout,
			ReadTimeout:     readTimeout,
			StrictBlockEcho: &strict,
			MaxDownloadRate: maxDownloadRate,
		},
		Tracker: &TrackerConfig{
			Timeout: trackerTimeout,
			NumWant: numWant,
		},
	}
}

// Validate checks values that cannot be defaulted away.
func (c *Config) Validate() error {
	if len(c.PeerID) != 20 {
		return fmt.Errorf("%w: %q is %d bytes", ErrInvalidPeerID, c.PeerID, len(c.PeerID))
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if c.Peer != nil && c.Peer.MaxDownloadRate < 0 {
		return fmt.Errorf("invalid maxDownloadRate %d", c.Peer.MaxDownloadRate)
	}

	return nil
}

// PeerIDBytes returns the peer id as sent on the wire.
func (c *Config) PeerIDBytes() [20]byte {
	var id [20]byte
	copy(id[:], c.PeerID)

	return id
}

// Strict reports whether piece replies must echo the request exactly.
func (p *PeerConfig) Strict() bool {
	return p.StrictBlockEcho == nil || *p.StrictBlockEcho
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
