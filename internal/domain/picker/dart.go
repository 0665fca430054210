package picker

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jaketremper/radioplayer/internal/domain/tags"
	"github.com/jaketremper/radioplayer/internal/infra/store"
)

// pickCold serves a track with no usable cache: a quick random dart at the
// filesystem. Best effort only — an empty string tells the streaming host
// to play silence.
func (p *Picker) pickCold() string {
	path := p.quickRandomDart()
	if path == "" {
		log.Warn().Str("dir", p.cfg.MusicDir).Msg("Quick random dart found no audio files")
		return ""
	}

	// Provisional stamp so immediate follow-up picks spread out. Purely
	// optional: a busy or absent store never costs the pick.
	if p.st != nil && p.probe != nil {
		artistRaw, titleRaw := p.probe.Extract(path)
		err := p.st.RecordPlay(store.Play{
			Path:       path,
			ArtistRaw:  artistRaw,
			TitleRaw:   titleRaw,
			ArtistNorm: tags.ArtistKey(artistRaw, p.cfg.UnknownArtistBucket),
			TitleNorm:  tags.TitleKey(titleRaw),
			Ts:         p.now().Unix(),
		})
		if err != nil {
			log.Debug().Err(err).Msg("Skipping provisional record for cold pick")
		}
	}
	return path
}

// quickRandomDart samples the music root without consulting the database:
// audio files at the top level first, then a peek into a few shuffled
// subdirectories, then the first hit of a shallow walk.
func (p *Picker) quickRandomDart() string {
	exts := p.cfg.ExtSet()

	entries, err := os.ReadDir(p.cfg.MusicDir)
	if err != nil {
		log.Debug().Err(err).Str("dir", p.cfg.MusicDir).Msg("Cannot read music root")
		entries = nil
	}
	p.rng.Shuffle(len(entries), func(i, j int) {
		entries[i], entries[j] = entries[j], entries[i]
	})
	if p.cfg.TopNDirs > 0 && len(entries) > p.cfg.TopNDirs {
		entries = entries[:p.cfg.TopNDirs]
	}

	var files []string
	var dirs []os.DirEntry
	for _, e := range entries {
		switch {
		case e.Type().IsRegular() && exts[strings.ToLower(filepath.Ext(e.Name()))]:
			files = append(files, filepath.Join(p.cfg.MusicDir, e.Name()))
		case e.IsDir():
			dirs = append(dirs, e)
		}
	}
	if len(files) > 0 {
		return files[p.rng.Intn(len(files))]
	}

	for _, d := range dirs {
		dir := filepath.Join(p.cfg.MusicDir, d.Name())
		candidates := listAudio(dir, exts, p.cfg.FilesPerDirTry)
		if len(candidates) > 0 {
			return candidates[p.rng.Intn(len(candidates))]
		}
	}

	return p.firstShallowHit(exts)
}

// listAudio returns up to limit audio files directly inside dir.
func listAudio(dir string, exts map[string]bool, limit int) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !exts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// firstShallowHit walks the tree and takes the first audio file it meets.
// Last resort for roots that nest everything several levels deep.
func (p *Picker) firstShallowHit(exts map[string]bool) string {
	var hit string
	filepath.WalkDir(p.cfg.MusicDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && exts[strings.ToLower(filepath.Ext(path))] {
			hit = path
			return filepath.SkipAll
		}
		return nil
	})
	return hit
}
