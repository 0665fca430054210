package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaketremper/radioplayer/internal/infra/store"
)

func openTemp(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "selector.db"), 100, 200)
	if err := st.Open(); err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenCreatesFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "selector.db")
	st := store.New(dbPath, 0, 0)

	if err := st.Open(); err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist after Open()")
	}
}

func TestOpenSetsSchemaVersion(t *testing.T) {
	st := openTemp(t)

	version, err := st.GetMeta("schema_version")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if version != store.CurrentSchemaVersion {
		t.Errorf("schema_version = %q, want %q", version, store.CurrentSchemaVersion)
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "selector.db")

	for i := 0; i < 2; i++ {
		st := store.New(dbPath, 0, 0)
		if err := st.Open(); err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		if err := st.Close(); err != nil {
			t.Fatalf("Close #%d failed: %v", i+1, err)
		}
	}
}

func TestOpenUnwritablePathIsUnavailable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not bind as root")
	}
	st := store.New("/proc/definitely/not/writable/x.db", 0, 0)
	err := st.Open()
	if err == nil {
		st.Close()
		t.Fatal("Open should fail on an unwritable path")
	}
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("Open error = %v, want ErrUnavailable", err)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	st := openTemp(t)

	if err := st.SetMeta("k", "v1"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	if err := st.SetMeta("k", "v2"); err != nil {
		t.Fatalf("SetMeta upsert failed: %v", err)
	}

	got, err := st.GetMeta("k")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if got != "v2" {
		t.Errorf("GetMeta = %q, want %q", got, "v2")
	}

	missing, err := st.GetMeta("absent")
	if err != nil {
		t.Fatalf("GetMeta(absent) failed: %v", err)
	}
	if missing != "" {
		t.Errorf("GetMeta(absent) = %q, want empty", missing)
	}
}

func TestLastFullScanRoundTrip(t *testing.T) {
	st := openTemp(t)

	ts, err := st.LastFullScan()
	if err != nil {
		t.Fatalf("LastFullScan failed: %v", err)
	}
	if ts != 0 {
		t.Errorf("LastFullScan on fresh store = %d, want 0", ts)
	}

	if err := st.SetLastFullScan(1700000000); err != nil {
		t.Fatalf("SetLastFullScan failed: %v", err)
	}
	ts, err = st.LastFullScan()
	if err != nil {
		t.Fatalf("LastFullScan failed: %v", err)
	}
	if ts != 1700000000 {
		t.Errorf("LastFullScan = %d, want 1700000000", ts)
	}
}

func TestVacuum(t *testing.T) {
	st := openTemp(t)
	if err := st.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}
