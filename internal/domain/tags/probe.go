// Package tags extracts and normalizes artist/title metadata for the
// selector. Extraction shells out to ffprobe under a hard deadline, falls
// back to an in-process tag reader, and finally to filename heuristics;
// it never fails, it only degrades.
package tags

import (
	"bytes"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// artistTagKeys is the lookup order for the artist among ffprobe's
// format-level tags.
var artistTagKeys = []string{"artist", "albumartist", "album_artist", "album artist", "performer"}

// ffprobeEntries lists the tag spellings requested from ffprobe, covering
// the casings different containers emit.
const ffprobeEntries = "format_tags=artist,title,album_artist,albumartist,performer,AlbumArtist,ALBUMARTIST,ARTIST,TITLE,PERFORMER"

// Probe extracts raw artist/title tags from audio files.
type Probe struct {
	Bin     string
	Timeout time.Duration
}

// NewProbe creates a probe around the given ffprobe binary and wall-clock
// budget per file.
func NewProbe(bin string, timeout time.Duration) *Probe {
	if bin == "" {
		bin = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 800 * time.Millisecond
	}
	return &Probe{Bin: bin, Timeout: timeout}
}

// Extract returns the best-effort (artist, title) for path. Missing values
// come back empty, never an error: a probe failure must not fail a scan or
// a pick.
func (p *Probe) Extract(path string) (artist, title string) {
	artist, title = p.ffprobe(path)

	if artist == "" && title == "" {
		artist, title = readEmbedded(path)
	}

	stem := strings.TrimSpace(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	stemArtist, stemTitle, split := strings.Cut(stem, " - ")
	if !split {
		stemTitle = stem
	}
	if title == "" {
		title = strings.TrimSpace(stemTitle)
	}
	if artist == "" && split {
		artist = strings.TrimSpace(stemArtist)
	}
	return artist, title
}

type ffprobeOutput struct {
	Format struct {
		Tags map[string]string `json:"tags"`
	} `json:"format"`
}

// ffprobe runs the external probe with stdin closed and output captured.
// The child gets its own process group so a timeout can kill it and any
// descendants: SIGTERM, 100ms grace, SIGKILL.
func (p *Probe) ffprobe(path string) (artist, title string) {
	cmd := exec.Command(p.Bin,
		"-v", "error",
		"-show_entries", ffprobeEntries,
		"-of", "json", path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		log.Debug().Err(err).Str("bin", p.Bin).Msg("ffprobe unavailable")
		return "", ""
	}

	timer := time.AfterFunc(p.Timeout, func() {
		pgid := cmd.Process.Pid
		syscall.Kill(-pgid, syscall.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		syscall.Kill(-pgid, syscall.SIGKILL)
	})
	err := cmd.Wait()
	timedOut := !timer.Stop()

	if err != nil {
		if timedOut {
			log.Warn().Str("path", path).Dur("timeout", p.Timeout).Msg("ffprobe timed out")
		} else {
			log.Debug().Err(err).Str("path", path).Msg("ffprobe failed")
		}
		return "", ""
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("ffprobe output unparsable")
		return "", ""
	}

	folded := make(map[string]string, len(out.Format.Tags))
	for k, v := range out.Format.Tags {
		folded[strings.ToLower(k)] = strings.TrimSpace(v)
	}
	for _, key := range artistTagKeys {
		if v := folded[key]; v != "" {
			artist = v
			break
		}
	}
	title = folded["title"]
	return artist, title
}
