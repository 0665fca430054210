package store

import (
	"database/sql"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const scanLockName = "scan"

// AcquireScanLock claims the full-scan mutual exclusion token with an
// atomic compare-and-set. A lock younger than stale belongs to a live
// scanner and returns ErrLockHeld; an older one is reclaimed from its
// crashed holder. The returned token must be passed to ReleaseScanLock.
func (s *Store) AcquireScanLock(stale time.Duration) (string, error) {
	token := uuid.New().String()
	now := time.Now().Unix()

	err := s.WithImmediateTx(func(tx *Tx) error {
		var heldPid int
		var heldTs int64
		err := tx.tx.QueryRow(
			"SELECT pid, ts FROM locks WHERE name = ?", scanLockName,
		).Scan(&heldPid, &heldTs)

		switch {
		case err == sql.ErrNoRows:
			_, err := tx.tx.Exec(
				"INSERT INTO locks (name, pid, token, ts) VALUES (?, ?, ?, ?)",
				scanLockName, os.Getpid(), token, now,
			)
			return classify(err)
		case err != nil:
			return classify(err)
		case now-heldTs > int64(stale.Seconds()):
			log.Warn().
				Int("pid", heldPid).
				Int64("age_sec", now-heldTs).
				Msg("Reclaiming stale scan lock")
			_, uerr := tx.tx.Exec(
				"UPDATE locks SET pid = ?, token = ?, ts = ? WHERE name = ?",
				os.Getpid(), token, now, scanLockName,
			)
			return classify(uerr)
		default:
			return ErrLockHeld
		}
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// ReleaseScanLock drops the scan lock if this process still owns it. A
// reclaimed lock belongs to someone else now and is left alone.
func (s *Store) ReleaseScanLock(token string) error {
	_, err := s.db.Exec(
		"DELETE FROM locks WHERE name = ? AND token = ?", scanLockName, token,
	)
	return classify(err)
}
