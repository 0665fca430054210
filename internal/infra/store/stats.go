package store

import (
	"strconv"
	"time"
)

// MetaLastFullScan is the meta key recording when the last complete walk
// of the music root started.
const MetaLastFullScan = "last_full_scan"

// Stats summarizes the store for the status subcommand.
type Stats struct {
	Files         int
	ArtistPlays   int
	TitlePlays    int
	PathPlays     int
	HistoryRows   int
	SchemaVersion string
	LastFullScan  time.Time
}

// GetStats collects table counts and scan metadata.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM files", &stats.Files},
		{"SELECT COUNT(*) FROM artist_plays", &stats.ArtistPlays},
		{"SELECT COUNT(*) FROM title_plays", &stats.TitlePlays},
		{"SELECT COUNT(*) FROM path_plays", &stats.PathPlays},
		{"SELECT COUNT(*) FROM history", &stats.HistoryRows},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dst); err != nil {
			return nil, classify(err)
		}
	}

	stats.SchemaVersion, _ = s.GetMeta("schema_version")

	if raw, err := s.GetMeta(MetaLastFullScan); err == nil && raw != "" {
		if ts, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			stats.LastFullScan = time.Unix(ts, 0)
		}
	}

	return stats, nil
}

// LastFullScan returns the unix timestamp of the last completed scan, or
// zero when the library has never been scanned.
func (s *Store) LastFullScan() (int64, error) {
	raw, err := s.GetMeta(MetaLastFullScan)
	if err != nil || raw == "" {
		return 0, err
	}
	ts, perr := strconv.ParseInt(raw, 10, 64)
	if perr != nil {
		return 0, nil
	}
	return ts, nil
}

// SetLastFullScan records the start timestamp of a completed scan.
func (s *Store) SetLastFullScan(ts int64) error {
	return s.SetMeta(MetaLastFullScan, strconv.FormatInt(ts, 10))
}
