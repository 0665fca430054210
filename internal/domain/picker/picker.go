// Package picker chooses the next track to broadcast. One call, one path
// on stdout, in bounded time: every failure mode degrades to a cheaper
// selection strategy rather than an error, because the caller is a live
// audio pipeline and a missing answer is dead air.
package picker

import (
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jaketremper/radioplayer/internal/config"
	"github.com/jaketremper/radioplayer/internal/domain/tags"
	"github.com/jaketremper/radioplayer/internal/infra/store"
)

// sampleN is the warm-path candidate sample size. Large enough that a
// diverse library almost always yields a strict-pass hit, small enough to
// stay in memory and milliseconds.
const sampleN = 2000

// Picker selects tracks against the separation state in the store.
type Picker struct {
	st    *store.Store // nil when the store is unavailable; dart-only mode
	cfg   *config.Config
	probe *tags.Probe
	rng   *rand.Rand

	// now and triggerScan are swappable for tests.
	now         func() time.Time
	triggerScan func() error
}

// New creates a picker. st may be nil when the store could not be opened;
// the picker then serves cold-path selections straight off the filesystem.
func New(st *store.Store, cfg *config.Config, probe *tags.Probe, triggerScan func() error) *Picker {
	return &Picker{
		st:          st,
		cfg:         cfg,
		probe:       probe,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
		triggerScan: triggerScan,
	}
}

// PickNext returns the absolute path of the next track, or "" when no
// track is available. It never fails and never blocks on a scan.
func (p *Picker) PickNext() string {
	if p.st == nil {
		return p.pickCold()
	}

	count, err := p.st.CountFiles()
	if err != nil {
		log.Warn().Err(err).Msg("File count failed, falling back to cold path")
		return p.pickCold()
	}

	p.maybeRescan(count)

	if count == 0 {
		return p.pickCold()
	}

	sample, err := p.st.SamplePaths(sampleN)
	if err != nil {
		log.Warn().Err(err).Msg("Sampling failed, falling back to cold path")
		return p.pickCold()
	}
	if len(sample) == 0 {
		return p.pickCold()
	}

	return p.pickWarm(sample)
}

// maybeRescan triggers a detached background scan when the cache is empty
// or older than the rescan interval. The pick continues regardless.
func (p *Picker) maybeRescan(count int) {
	lastScan, err := p.st.LastFullScan()
	if err != nil {
		return
	}
	age := p.now().Unix() - lastScan
	if count > 0 && age <= int64(p.cfg.RescanSec) {
		return
	}
	if p.triggerScan == nil {
		return
	}
	if err := p.triggerScan(); err != nil {
		log.Warn().Err(err).Msg("Could not trigger background rescan")
	} else {
		log.Info().Int64("cache_age_sec", age).Int("files", count).Msg("Background rescan triggered")
	}
}

// lastPlayFn abstracts last-play lookups so the warm pass can run either
// inside a write transaction or, when the writer is busy, on plain reads.
type lastPlayFn func(kind store.PlayKind, key string) (int64, bool, error)

// pickWarm runs the two-pass selection over a random sample. Separation
// reads and the provisional play write share one immediate transaction, so
// concurrent pickers serialize and cannot hand out the same file inside a
// per-file separation window.
func (p *Picker) pickWarm(sample []store.Candidate) string {
	var chosen *store.Candidate

	err := p.st.WithImmediateTx(func(tx *store.Tx) error {
		chosen = p.choose(sample, memoize(tx.LastPlay))
		if chosen == nil {
			return nil
		}
		return tx.RecordPlay(p.provisionalPlay(chosen))
	})

	if errors.Is(err, store.ErrBusy) {
		// A contended writer must not cost us the pick: evaluate on
		// plain reads and skip the provisional record.
		log.Warn().Msg("Store busy, picking without provisional record")
		chosen = p.choose(sample, memoize(p.st.LastPlay))
	} else if err != nil {
		log.Warn().Err(err).Msg("Warm pick failed, falling back to cold path")
		return p.pickCold()
	}

	if chosen == nil {
		return p.pickCold()
	}
	return chosen.Path
}

// provisionalPlay stamps the chosen candidate at pick time. The later
// track-start callback overwrites it with the on-air moment; recording now
// keeps a burst of rapid picks from converging on one track.
func (p *Picker) provisionalPlay(c *store.Candidate) store.Play {
	return store.Play{
		Path:       c.Path,
		ArtistNorm: c.ArtistNorm,
		TitleNorm:  c.TitleNorm,
		Ts:         p.now().Unix(),
	}
}

// choose applies the strict pass, then the least-violating fallback.
func (p *Picker) choose(sample []store.Candidate, lastPlay lastPlayFn) *store.Candidate {
	now := p.now().Unix()

	type scored struct {
		c     store.Candidate
		score int64
	}
	var best *scored

	for i := range sample {
		c := sample[i]
		sepOK, worst := p.evaluate(&c, now, lastPlay)
		if sepOK {
			return &sample[i]
		}
		// Least-violating: the candidate whose most recent offending
		// play is furthest in the past wins; ties go to the lower path.
		if best == nil || worst < best.score || (worst == best.score && c.Path < best.c.Path) {
			best = &scored{c: c, score: worst}
		}
	}

	if best == nil {
		return nil
	}
	out := best.c
	return &out
}

// evaluate checks the three separation predicates for one candidate.
// It returns whether all hold, and otherwise the most recent timestamp
// among the violated ones. Files without a key for a dimension hold no
// window there.
func (p *Picker) evaluate(c *store.Candidate, now int64, lastPlay lastPlayFn) (bool, int64) {
	var worst int64 = -1
	ok := true

	check := func(kind store.PlayKind, key string, sep time.Duration) {
		if key == "" || sep <= 0 {
			return
		}
		ts, found, err := lastPlay(kind, key)
		if err != nil || !found {
			return
		}
		if now-ts <= int64(sep.Seconds()) {
			ok = false
			if ts > worst {
				worst = ts
			}
		}
	}

	check(store.KindArtist, c.ArtistNorm, p.cfg.ArtistSep())
	check(store.KindTitle, c.TitleNorm, p.cfg.TitleSep())
	check(store.KindPath, c.Path, p.cfg.TrackSep())

	return ok, worst
}

// memoize caches last-play lookups per key; a 2000-row sample shares a
// handful of hot artists.
func memoize(fn lastPlayFn) lastPlayFn {
	type entry struct {
		ts int64
		ok bool
	}
	seen := make(map[store.PlayKind]map[string]entry)
	return func(kind store.PlayKind, key string) (int64, bool, error) {
		if m := seen[kind]; m != nil {
			if e, hit := m[key]; hit {
				return e.ts, e.ok, nil
			}
		} else {
			seen[kind] = make(map[string]entry)
		}
		ts, ok, err := fn(kind, key)
		if err != nil {
			return ts, ok, err
		}
		seen[kind][key] = entry{ts: ts, ok: ok}
		return ts, ok, nil
	}
}
