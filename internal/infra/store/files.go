package store

import (
	"database/sql"
)

// FileRow is one scanned audio file.
type FileRow struct {
	Path        string
	ArtistRaw   string
	TitleRaw    string
	ArtistNorm  string
	TitleNorm   string
	Ext         string
	Mtime       int64
	LastScanned int64
}

// Candidate is the slice of a file row the picker works with.
type Candidate struct {
	Path       string
	ArtistNorm string
	TitleNorm  string
}

// UpsertFile inserts or replaces a file row. Each upsert is its own
// transaction, so an interrupted scan leaves a coherent database.
func (s *Store) UpsertFile(row FileRow) error {
	_, err := s.db.Exec(`
		INSERT INTO files (path, artist_raw, title_raw, artist_norm, title_norm, ext, mtime, last_scanned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			artist_raw = excluded.artist_raw,
			title_raw = excluded.title_raw,
			artist_norm = excluded.artist_norm,
			title_norm = excluded.title_norm,
			ext = excluded.ext,
			mtime = excluded.mtime,
			last_scanned = excluded.last_scanned
	`, row.Path, row.ArtistRaw, row.TitleRaw, row.ArtistNorm, row.TitleNorm, row.Ext, row.Mtime, row.LastScanned)
	return classify(err)
}

// TouchFile refreshes last_scanned for a file whose tags did not need
// re-probing, so DeleteMissing keeps it.
func (s *Store) TouchFile(path string, scannedAt int64) error {
	_, err := s.db.Exec("UPDATE files SET last_scanned = ? WHERE path = ?", scannedAt, path)
	return classify(err)
}

// GetFile returns the row for path, or nil if the path is unknown.
func (s *Store) GetFile(path string) (*FileRow, error) {
	row := &FileRow{}
	err := s.db.QueryRow(`
		SELECT path, artist_raw, title_raw, artist_norm, title_norm, ext, mtime, last_scanned
		FROM files WHERE path = ?
	`, path).Scan(&row.Path, &row.ArtistRaw, &row.TitleRaw, &row.ArtistNorm, &row.TitleNorm,
		&row.Ext, &row.Mtime, &row.LastScanned)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return row, nil
}

// CountFiles returns the number of known files.
func (s *Store) CountFiles() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&count)
	return count, classify(err)
}

// SamplePaths returns up to n randomly chosen candidates. Randomization
// happens at the storage layer; the table is never loaded whole into the
// process.
func (s *Store) SamplePaths(n int) ([]Candidate, error) {
	rows, err := s.db.Query(`
		SELECT path, artist_norm, title_norm FROM files
		ORDER BY RANDOM() LIMIT ?
	`, n)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.Path, &c.ArtistNorm, &c.TitleNorm); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteMissing removes file rows not observed since the given scan start:
// anything the walk did not touch this pass has disappeared from disk.
// Returns the number of rows removed.
func (s *Store) DeleteMissing(scanStart int64) (int64, error) {
	res, err := s.db.Exec("DELETE FROM files WHERE last_scanned < ?", scanStart)
	if err != nil {
		return 0, classify(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
