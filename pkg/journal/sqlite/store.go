package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/johnw42/remapd/pkg/journal"
	"github.com/johnw42/remapd/pkg/journal/sqlite/migrations"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Journal is the sqlite-backed activity store. WAL mode plus a busy
// timeout lets the supervisor and worker processes append to the same
// file.
type Journal struct {
	db *sql.DB
}

func NewJournal(filename string, log *zap.SugaredLogger) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", filename)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := migrations.Migrate(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Append(e journal.Entry) error {
	_, err := j.db.Exec(
		`INSERT INTO entries (at, kind, rule, detail) VALUES (?, ?, ?, ?)`,
		e.Time.UnixMilli(), string(e.Kind), e.Rule, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("sqlite insert: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) ([]journal.Entry, error) {
	rows, err := j.db.Query(
		`SELECT id, at, kind, rule, detail FROM entries ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite select: %w", err)
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		var e journal.Entry
		var at int64
		var kind string
		if err := rows.Scan(&e.ID, &at, &kind, &e.Rule, &e.Detail); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		e.Time = time.UnixMilli(at)
		e.Kind = journal.Kind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite rows: %w", err)
	}

	return entries, nil
}
