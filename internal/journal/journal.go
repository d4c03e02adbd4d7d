// Package journal records which series have been archived so that an
// interrupted packaging run can be resumed without re-uploading.
package journal

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/liquidgecka/seriespack/manifest"
)

const schema = `
CREATE TABLE IF NOT EXISTS archived (
	series      text PRIMARY KEY,
	fingerprint text NOT NULL,
	md5         text NOT NULL,
	size        integer NOT NULL,
	url         text NOT NULL,
	file_name   text NOT NULL,
	contents    text NOT NULL,
	archived_at integer NOT NULL
);
`

// One archived series.
type Entry struct {
	// The series manifest path relative to the batch directory.
	Series string

	// Fingerprint of the series manifest contents at the time it was
	// archived. A changed manifest no longer matches.
	Fingerprint string

	// The package record that was produced.
	Record manifest.PackageRecord

	Archived time.Time
}

// A SQLite backed journal. It is safe for concurrent use.
type Journal struct {
	lock sync.Mutex
	db   *sql.DB
}

// Opens (creating if needed) the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=60000&mode=rwc")
	if err != nil {
		return nil, errors.Wrapf(err, "opening journal %s", path)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "initializing journal %s", path)
	}
	return &Journal{db: db}, nil
}

// Returns the entry for a series, if any.
func (j *Journal) Lookup(series string) (*Entry, error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	row := j.db.QueryRow(`
		SELECT fingerprint, md5, size, url, file_name, contents, archived_at
		FROM archived WHERE series = ?`,
		series)
	e := Entry{Series: series}
	var contents string
	var archived int64
	err := row.Scan(
		&e.Fingerprint,
		&e.Record.MD5,
		&e.Record.Size,
		&e.Record.URL,
		&e.Record.FileName,
		&contents,
		&archived)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "reading journal")
	}
	e.Record.RecordType = manifest.PackageRecordType
	if e.Record.Contents, err = manifest.ParseContents(contents); err != nil {
		return nil, err
	}
	e.Archived = time.Unix(archived, 0).UTC()
	return &e, nil
}

// Returns the entry for a series only if it was archived from a manifest
// with the same fingerprint.
func (j *Journal) Done(series, fingerprint string) (*Entry, error) {
	e, err := j.Lookup(series)
	if err != nil || e == nil || e.Fingerprint != fingerprint {
		return nil, err
	}
	return e, nil
}

// Records a series as archived, replacing any previous entry. The
// Archived time is set to now.
func (j *Journal) Record(series, fingerprint string, r *manifest.PackageRecord) error {
	j.lock.Lock()
	defer j.lock.Unlock()
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO archived
		(series, fingerprint, md5, size, url, file_name, contents, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		series,
		fingerprint,
		r.MD5,
		r.Size,
		r.URL,
		r.FileName,
		manifest.FormatContents(r.Contents),
		time.Now().Unix())
	return errors.Wrap(err, "writing journal")
}

// Returns the number of archived series.
func (j *Journal) Len() (int, error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM archived`).Scan(&n)
	return n, errors.Wrap(err, "reading journal")
}

func (j *Journal) Close() error {
	return j.db.Close()
}
