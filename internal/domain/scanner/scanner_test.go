package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaketremper/radioplayer/internal/config"
	"github.com/jaketremper/radioplayer/internal/domain/tags"
	"github.com/jaketremper/radioplayer/internal/infra/store"
)

func testConfig(musicDir string) *config.Config {
	return &config.Config{
		MusicDir:            musicDir,
		LockStaleSec:        3600,
		ScanExts:            ".mp3,.flac",
		UnknownArtistBucket: true,
	}
}

func testScanner(t *testing.T, musicDir string) (*Scanner, *store.Store) {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "selector.db"), 1000, 2000)
	if err := st.Open(); err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	// A missing probe binary exercises the filename fallback, which is
	// all empty fixture files can yield anyway.
	probe := tags.NewProbe("/nonexistent/ffprobe", 100*time.Millisecond)
	return New(st, probe, testConfig(musicDir)), st
}

func writeTrack(t *testing.T, dir, name string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte{}, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunIndexesLibrary(t *testing.T) {
	musicDir := t.TempDir()
	p1 := writeTrack(t, filepath.Join(musicDir, "kinks"), "The Kinks - Waterloo Sunset.mp3")
	p2 := writeTrack(t, filepath.Join(musicDir, "loops"), "ambient_loop.flac")
	writeTrack(t, musicDir, "notes.txt") // filtered by extension

	sc, st := testScanner(t, musicDir)
	if err := sc.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	count, err := st.CountFiles()
	if err != nil {
		t.Fatalf("CountFiles failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("CountFiles = %d, want 2", count)
	}

	row, err := st.GetFile(p1)
	if err != nil || row == nil {
		t.Fatalf("GetFile(%q) = %v, %v", p1, row, err)
	}
	if row.ArtistRaw != "The Kinks" || row.TitleRaw != "Waterloo Sunset" {
		t.Errorf("raw tags = (%q, %q), want filename-derived", row.ArtistRaw, row.TitleRaw)
	}
	if row.ArtistNorm != "kinks" || row.TitleNorm != "waterloo sunset" {
		t.Errorf("normalized keys = (%q, %q)", row.ArtistNorm, row.TitleNorm)
	}
	if row.Ext != ".mp3" {
		t.Errorf("ext = %q, want .mp3", row.Ext)
	}

	// Untagged file lands in the unknown-artist bucket.
	row, err = st.GetFile(p2)
	if err != nil || row == nil {
		t.Fatalf("GetFile(%q) = %v, %v", p2, row, err)
	}
	if row.ArtistNorm != tags.UnknownArtistKey {
		t.Errorf("untagged artist key = %q, want %q", row.ArtistNorm, tags.UnknownArtistKey)
	}

	last, err := st.LastFullScan()
	if err != nil {
		t.Fatalf("LastFullScan failed: %v", err)
	}
	if last == 0 {
		t.Error("Run should record last_full_scan")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	musicDir := t.TempDir()
	writeTrack(t, filepath.Join(musicDir, "a"), "A - One.mp3")
	writeTrack(t, filepath.Join(musicDir, "b"), "B - Two.mp3")

	sc, st := testScanner(t, musicDir)
	if err := sc.Run(); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	before := snapshotFiles(t, st, musicDir)
	if err := sc.Run(); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	after := snapshotFiles(t, st, musicDir)

	if len(before) != len(after) {
		t.Fatalf("row count changed: %d -> %d", len(before), len(after))
	}
	for path, b := range before {
		a, ok := after[path]
		if !ok {
			t.Errorf("row %q vanished on rescan", path)
			continue
		}
		// last_scanned moves; everything else must not.
		b.LastScanned, a.LastScanned = 0, 0
		if a != b {
			t.Errorf("row %q changed on unchanged library:\n  before %+v\n  after  %+v", path, b, a)
		}
	}
}

// snapshotFiles reads every file row keyed by path.
func snapshotFiles(t *testing.T, st *store.Store, musicDir string) map[string]store.FileRow {
	t.Helper()
	sample, err := st.SamplePaths(10000)
	if err != nil {
		t.Fatalf("SamplePaths failed: %v", err)
	}
	out := make(map[string]store.FileRow)
	for _, c := range sample {
		row, err := st.GetFile(c.Path)
		if err != nil || row == nil {
			t.Fatalf("GetFile(%q) = %v, %v", c.Path, row, err)
		}
		out[c.Path] = *row
	}
	return out
}

func TestRunDropsVanishedFiles(t *testing.T) {
	musicDir := t.TempDir()
	keep := writeTrack(t, filepath.Join(musicDir, "a"), "A - One.mp3")
	gone := writeTrack(t, filepath.Join(musicDir, "b"), "B - Two.mp3")

	sc, st := testScanner(t, musicDir)
	if err := sc.Run(); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}
	// last_scanned comparisons are in whole seconds; make sure the
	// second pass starts on a later tick.
	time.Sleep(1100 * time.Millisecond)
	if err := sc.Run(); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if row, _ := st.GetFile(gone); row != nil {
		t.Errorf("vanished file still present: %+v", row)
	}
	if row, _ := st.GetFile(keep); row == nil {
		t.Error("surviving file was dropped")
	}
}

func TestRunPicksUpNewFiles(t *testing.T) {
	musicDir := t.TempDir()
	writeTrack(t, filepath.Join(musicDir, "a"), "A - One.mp3")

	sc, st := testScanner(t, musicDir)
	if err := sc.Run(); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	added := writeTrack(t, filepath.Join(musicDir, "c"), "C - Three.mp3")
	time.Sleep(1100 * time.Millisecond)
	if err := sc.Run(); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	row, err := st.GetFile(added)
	if err != nil || row == nil {
		t.Fatalf("new file not indexed: %v, %v", row, err)
	}
	if row.ArtistNorm != "c" {
		t.Errorf("artist key = %q, want %q", row.ArtistNorm, "c")
	}
}

func TestRunRefusesHeldLock(t *testing.T) {
	musicDir := t.TempDir()
	writeTrack(t, musicDir, "A - One.mp3")

	sc, st := testScanner(t, musicDir)
	if _, err := st.AcquireScanLock(time.Hour); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	err := sc.Run()
	if !errors.Is(err, store.ErrLockHeld) {
		t.Fatalf("Run error = %v, want ErrLockHeld", err)
	}

	count, _ := st.CountFiles()
	if count != 0 {
		t.Errorf("locked-out scanner still wrote %d rows", count)
	}
}
