package store

import (
	"database/sql"
	"fmt"
)

// PlayKind selects which separation table a last-play lookup hits.
type PlayKind int

const (
	// KindArtist keys plays by normalized artist.
	KindArtist PlayKind = iota
	// KindTitle keys plays by normalized title.
	KindTitle
	// KindPath keys plays by absolute file path.
	KindPath
)

func (k PlayKind) query() string {
	switch k {
	case KindArtist:
		return "SELECT ts FROM artist_plays WHERE artist_norm = ?"
	case KindTitle:
		return "SELECT ts FROM title_plays WHERE title_norm = ?"
	default:
		return "SELECT ts FROM path_plays WHERE path = ?"
	}
}

// LastPlay returns the most recent play timestamp for key, with ok=false
// when the key has never played.
func (s *Store) LastPlay(kind PlayKind, key string) (ts int64, ok bool, err error) {
	err = s.db.QueryRow(kind.query(), key).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify(err)
	}
	return ts, true, nil
}

// LastPlay is the transactional variant of Store.LastPlay; the picker uses
// it so the state it evaluates is the state it records against.
func (t *Tx) LastPlay(kind PlayKind, key string) (ts int64, ok bool, err error) {
	err = t.tx.QueryRow(kind.query(), key).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify(err)
	}
	return ts, true, nil
}

// Play is one play event to record.
type Play struct {
	Path       string
	ArtistRaw  string
	TitleRaw   string
	ArtistNorm string
	TitleNorm  string
	Ts         int64
}

// RecordPlay upserts the three play tables, appends a history row and trims
// all four to their caps, in one transaction.
func (s *Store) RecordPlay(p Play) error {
	return s.WithImmediateTx(func(tx *Tx) error {
		return tx.RecordPlay(p)
	})
}

// RecordPlay records a play inside an open transaction. Empty keys skip
// their table: a file with no title key holds no title window, and with
// unknown-artist bucketing off an untagged file holds no artist window.
func (t *Tx) RecordPlay(p Play) error {
	if p.ArtistNorm != "" {
		if err := t.upsertPlay("artist_plays", "artist_norm", p.ArtistNorm, p.Ts); err != nil {
			return err
		}
	}
	if p.TitleNorm != "" {
		if err := t.upsertPlay("title_plays", "title_norm", p.TitleNorm, p.Ts); err != nil {
			return err
		}
	}
	if p.Path != "" {
		if err := t.upsertPlay("path_plays", "path", p.Path, p.Ts); err != nil {
			return err
		}
	}

	if p.Path != "" {
		_, err := t.tx.Exec(`
			INSERT INTO history (ts, path, artist_raw, title_raw) VALUES (?, ?, ?, ?)
		`, p.Ts, p.Path, p.ArtistRaw, p.TitleRaw)
		if err != nil {
			return classify(err)
		}
	}

	return t.trim()
}

// upsertPlay writes a last-play timestamp, never letting it move backwards.
// A provisional pick racing a later track-start must not clobber the newer
// on-air time.
func (t *Tx) upsertPlay(table, keyCol, key string, ts int64) error {
	_, err := t.tx.Exec(fmt.Sprintf(`
		INSERT INTO %s (%s, ts) VALUES (?, ?)
		ON CONFLICT(%s) DO UPDATE SET ts = excluded.ts
		WHERE excluded.ts >= %s.ts
	`, table, keyCol, keyCol, table), key, ts)
	return classify(err)
}

// trim evicts the oldest rows beyond the configured caps. Oldest-first by
// timestamp, which for the play tables is least-recently-played.
func (t *Tx) trim() error {
	caps := []struct {
		table string
		keep  int
	}{
		{"artist_plays", t.s.historyKeep},
		{"title_plays", t.s.historyKeep},
		{"path_plays", t.s.historyKeepPaths},
		{"history", t.s.historyKeep},
	}
	for _, c := range caps {
		_, err := t.tx.Exec(fmt.Sprintf(`
			DELETE FROM %s WHERE rowid NOT IN (
				SELECT rowid FROM %s ORDER BY ts DESC LIMIT ?
			)
		`, c.table, c.table), c.keep)
		if err != nil {
			return classify(err)
		}
	}
	return nil
}

// HistoryCount returns the number of retained history rows.
func (s *Store) HistoryCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM history").Scan(&count)
	return count, classify(err)
}
