// Package main is the entry point for the lsradio track selector, invoked
// per-song by the streaming engine. The one hard rule: pick-next prints a
// path (or an empty line) to stdout and exits 0, no matter what breaks.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jaketremper/radioplayer/internal/config"
	"github.com/jaketremper/radioplayer/internal/domain/picker"
	"github.com/jaketremper/radioplayer/internal/domain/scanner"
	"github.com/jaketremper/radioplayer/internal/domain/tags"
	"github.com/jaketremper/radioplayer/internal/infra/store"
	"github.com/jaketremper/radioplayer/internal/version"
)

const usage = `Usage: lsradio <command>

Commands:
  init           create the database and apply migrations
  rebuild-cache  run a full library scan in the foreground
  pick-next      print the next track path to stdout (empty line if none)
  track-start    record an on-air start: --artist A --title T --path P
  status         print library and play-history statistics
  vacuum         compact the database
  version        print version information
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lsradio: bad configuration: %v\n", err)
		if len(os.Args) > 1 && os.Args[1] == "pick-next" {
			fmt.Println()
			os.Exit(0)
		}
		os.Exit(2)
	}

	setupLogging(cfg.LogLevel)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "init":
		os.Exit(cmdInit(cfg))
	case "rebuild-cache", scanner.InternalRescanFlag:
		os.Exit(cmdScan(cfg, os.Args[1] == scanner.InternalRescanFlag))
	case "pick-next":
		os.Exit(cmdPickNext(cfg))
	case "track-start":
		os.Exit(cmdTrackStart(cfg, os.Args[2:]))
	case "status":
		os.Exit(cmdStatus(cfg))
	case "vacuum":
		os.Exit(cmdVacuum(cfg))
	case "version":
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "lsradio: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

// setupLogging routes all diagnostics to stderr; stdout belongs to
// pick-next output alone.
func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// openStore builds and opens the store from config.
func openStore(cfg *config.Config) (*store.Store, error) {
	st := store.New(cfg.DBPath, cfg.HistoryKeep, cfg.HistoryKeepPaths)
	if err := st.Open(); err != nil {
		return nil, err
	}
	return st, nil
}

func cmdInit(cfg *config.Config) int {
	st, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Str("db", cfg.DBPath).Msg("Init failed")
		return 1
	}
	defer st.Close()
	log.Info().Str("db", cfg.DBPath).Msg("Database ready")
	return 0
}

// cmdScan runs a full scan in-process. rebuild-cache reports lock
// contention with a non-zero exit; the detached rescan child stays silent
// about it, because a concurrent scanner means the work is already being
// done.
func cmdScan(cfg *config.Config, detachedChild bool) int {
	st, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Str("db", cfg.DBPath).Msg("Cannot open store for scan")
		if detachedChild {
			return 0
		}
		return 1
	}
	defer st.Close()

	probe := tags.NewProbe(cfg.FFProbeBin, cfg.FFProbeTimeout())
	sc := scanner.New(st, probe, cfg)

	err = sc.Run()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, store.ErrLockHeld):
		if detachedChild {
			return 0
		}
		log.Error().Msg("Another scan is already running")
		return 1
	default:
		log.Error().Err(err).Msg("Scan failed")
		if detachedChild {
			return 0
		}
		return 1
	}
}

// cmdPickNext emits exactly one line on stdout and always exits 0. A store
// that will not open demotes the pick to the filesystem cold path.
func cmdPickNext(cfg *config.Config) int {
	st, err := openStore(cfg)
	if err != nil {
		log.Warn().Err(err).Str("db", cfg.DBPath).Msg("Store unavailable, cold pick only")
		st = nil
	} else {
		defer st.Close()
	}

	probe := tags.NewProbe(cfg.FFProbeBin, cfg.FFProbeTimeout())
	p := picker.New(st, cfg, probe, scanner.SpawnDetached)

	fmt.Println(p.PickNext())
	return 0
}

// cmdTrackStart overwrites the provisional pick record with the on-air
// start time reported by the streaming engine. Nothing here may fail
// loudly: the track is already playing.
func cmdTrackStart(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("track-start", flag.ContinueOnError)
	artist := fs.String("artist", "", "artist as aired (raw)")
	title := fs.String("title", "", "title as aired (raw)")
	path := fs.String("path", "", "absolute file path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *path == "" {
		return 0
	}

	st, err := openStore(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Store unavailable, dropping track-start")
		return 0
	}
	defer st.Close()

	// Keys come from the live metadata, not the files table: the engine
	// may air paths the scanner has never seen.
	err = st.RecordPlay(store.Play{
		Path:       *path,
		ArtistRaw:  *artist,
		TitleRaw:   *title,
		ArtistNorm: tags.ArtistKey(*artist, cfg.UnknownArtistBucket),
		TitleNorm:  tags.TitleKey(*title),
		Ts:         time.Now().Unix(),
	})
	if err != nil {
		log.Warn().Err(err).Str("path", *path).Msg("Dropping track-start record")
	}
	return 0
}

func cmdStatus(cfg *config.Config) int {
	st, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Str("db", cfg.DBPath).Msg("Cannot open store")
		return 1
	}
	defer st.Close()

	stats, err := st.GetStats()
	if err != nil {
		log.Error().Err(err).Msg("Cannot read stats")
		return 1
	}

	lastScan := "never"
	if !stats.LastFullScan.IsZero() {
		lastScan = stats.LastFullScan.Format(time.RFC3339)
	}
	fmt.Printf("%s\n", version.GetInfo().String())
	fmt.Printf("db:             %s (schema %s)\n", cfg.DBPath, stats.SchemaVersion)
	fmt.Printf("files:          %d\n", stats.Files)
	fmt.Printf("artist plays:   %d\n", stats.ArtistPlays)
	fmt.Printf("title plays:    %d\n", stats.TitlePlays)
	fmt.Printf("path plays:     %d\n", stats.PathPlays)
	fmt.Printf("history rows:   %d\n", stats.HistoryRows)
	fmt.Printf("last full scan: %s\n", lastScan)
	return 0
}

func cmdVacuum(cfg *config.Config) int {
	st, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Str("db", cfg.DBPath).Msg("Cannot open store")
		return 1
	}
	defer st.Close()

	if err := st.Vacuum(); err != nil {
		log.Error().Err(err).Msg("Vacuum failed")
		return 1
	}
	return 0
}
