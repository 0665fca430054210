// Package config loads the selector configuration from LS_* environment
// variables.
package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable the selector reads from the environment.
// Variable names are part of the external contract; defaults mirror the
// systemd unit that ships with the station.
type Config struct {
	MusicDir string `envconfig:"MUSIC_DIR" default:"/srv/music"`
	DBPath   string `envconfig:"DB" default:"/var/lib/liquidsoap/liquidsoap.db"`

	ArtistSepMin int `envconfig:"ARTIST_SEP_MIN" default:"45"`
	TitleSepMin  int `envconfig:"TITLE_SEP_MIN" default:"180"`
	TrackSepSec  int `envconfig:"TRACK_SEP_SEC" default:"0"`

	RescanSec    int `envconfig:"RESCAN_SEC" default:"86400"`
	LockStaleSec int `envconfig:"LOCK_STALE_SEC" default:"3600"`

	TopNDirs       int `envconfig:"TOP_N_DIRS" default:"64"`
	FilesPerDirTry int `envconfig:"FILES_PER_DIR_TRY" default:"128"`

	FFProbeBin      string  `envconfig:"FFPROBE_BIN" default:"ffprobe"`
	FFProbeTimeoutS float64 `envconfig:"FFPROBE_TIMEOUT_S" default:"0.8"`

	ScanExts string `envconfig:"SCAN_EXTS" default:".mp3,.flac,.m4a,.ogg,.wav,.aac"`

	UnknownArtistBucket bool `envconfig:"UNKNOWN_ARTIST_BUCKET" default:"true"`

	HistoryKeep      int `envconfig:"HISTORY_KEEP" default:"10000"`
	HistoryKeepPaths int `envconfig:"HISTORY_KEEP_PATHS" default:"20000"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the configuration from the environment with the LS prefix.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("ls", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ArtistSep returns the artist separation window.
func (c *Config) ArtistSep() time.Duration {
	return time.Duration(c.ArtistSepMin) * time.Minute
}

// TitleSep returns the title separation window.
func (c *Config) TitleSep() time.Duration {
	return time.Duration(c.TitleSepMin) * time.Minute
}

// TrackSep returns the per-file separation window; zero disables it.
func (c *Config) TrackSep() time.Duration {
	return time.Duration(c.TrackSepSec) * time.Second
}

// RescanAfter returns the cache age beyond which a background rescan is due.
func (c *Config) RescanAfter() time.Duration {
	return time.Duration(c.RescanSec) * time.Second
}

// LockStale returns the age after which a scan lock is considered abandoned.
func (c *Config) LockStale() time.Duration {
	return time.Duration(c.LockStaleSec) * time.Second
}

// FFProbeTimeout returns the wall-clock budget for one tag probe.
func (c *Config) FFProbeTimeout() time.Duration {
	return time.Duration(c.FFProbeTimeoutS * float64(time.Second))
}

// ExtSet returns the audio extension filter as a lowercase set, dots
// included.
func (c *Config) ExtSet() map[string]bool {
	set := make(map[string]bool)
	for _, e := range strings.Split(c.ScanExts, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}
