// Package scanner brings the files table into agreement with the on-disk
// music root. A full scan can take minutes on a large library, so it never
// runs on the picker's path: pick-next spawns it as a detached process and
// the scan lock keeps concurrent walks out.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jaketremper/radioplayer/internal/config"
	"github.com/jaketremper/radioplayer/internal/domain/tags"
	"github.com/jaketremper/radioplayer/internal/infra/store"
)

// probeWorkers is the tag-probe fan-out. Probing dominates scan time;
// the walk and the single DB writer keep up easily.
const probeWorkers = 4

// Scanner walks the music root and commits tag updates to the store.
type Scanner struct {
	st    *store.Store
	probe *tags.Probe
	cfg   *config.Config
}

// New creates a scanner over the given store and probe.
func New(st *store.Store, probe *tags.Probe, cfg *config.Config) *Scanner {
	return &Scanner{st: st, probe: probe, cfg: cfg}
}

// fileOp is one pending write: a fresh row to upsert, or just a
// last_scanned touch for an unchanged file.
type fileOp struct {
	row   store.FileRow
	touch bool
}

// Run performs one full scan: acquire the scan lock, walk, diff against
// the store, probe changed files, delete the vanished, stamp
// last_full_scan. Returns store.ErrLockHeld when another scanner is live.
//
// Every upsert is its own transaction, so dying mid-scan leaves a coherent
// database and a lock that goes stale on schedule.
func (s *Scanner) Run() error {
	token, err := s.st.AcquireScanLock(s.cfg.LockStale())
	if err != nil {
		return err
	}
	defer s.st.ReleaseScanLock(token)

	start := time.Now()
	exts := s.cfg.ExtSet()

	paths := make(chan string, 256)
	ops := make(chan fileOp, 256)

	var workers sync.WaitGroup
	for i := 0; i < probeWorkers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for p := range paths {
				if op, ok := s.examine(p); ok {
					ops <- op
				}
			}
		}()
	}
	go func() {
		workers.Wait()
		close(ops)
	}()

	writerDone := make(chan struct{})
	var scanned, touched int
	go func() {
		defer close(writerDone)
		for op := range ops {
			if op.touch {
				if err := s.st.TouchFile(op.row.Path, op.row.LastScanned); err != nil {
					log.Warn().Err(err).Str("path", op.row.Path).Msg("Touch failed")
					continue
				}
				touched++
				continue
			}
			if err := s.st.UpsertFile(op.row); err != nil {
				log.Warn().Err(err).Str("path", op.row.Path).Msg("Upsert failed")
				continue
			}
			scanned++
		}
	}()

	walkErr := filepath.WalkDir(s.cfg.MusicDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			log.Debug().Err(err).Str("path", path).Msg("Skipping unreadable entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if exts[strings.ToLower(filepath.Ext(path))] {
			paths <- path
		}
		return nil
	})

	close(paths)
	<-writerDone

	if walkErr != nil {
		log.Warn().Err(walkErr).Str("dir", s.cfg.MusicDir).Msg("Walk finished with error")
	}

	removed, err := s.st.DeleteMissing(start.Unix())
	if err != nil {
		return err
	}
	if err := s.st.SetLastFullScan(start.Unix()); err != nil {
		return err
	}

	log.Info().
		Int("probed", scanned).
		Int("unchanged", touched).
		Int64("removed", removed).
		Dur("elapsed", time.Since(start)).
		Msg("Library scan complete")
	return nil
}

// examine decides what one walked path needs: a touch when the store row
// is still current, a probe and full upsert otherwise.
func (s *Scanner) examine(path string) (fileOp, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return fileOp{}, false
	}
	now := time.Now().Unix()
	mtime := info.ModTime().Unix()

	existing, err := s.st.GetFile(path)
	if err == nil && existing != nil && mtime <= existing.LastScanned {
		return fileOp{row: store.FileRow{Path: path, LastScanned: now}, touch: true}, true
	}

	artistRaw, titleRaw := s.probe.Extract(path)
	return fileOp{row: store.FileRow{
		Path:        path,
		ArtistRaw:   artistRaw,
		TitleRaw:    titleRaw,
		ArtistNorm:  tags.ArtistKey(artistRaw, s.cfg.UnknownArtistBucket),
		TitleNorm:   tags.TitleKey(titleRaw),
		Ext:         strings.ToLower(filepath.Ext(path)),
		Mtime:       mtime,
		LastScanned: now,
	}}, true
}
