package bundle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/odvcencio/graphstate/pkg/object"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS manifest (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	body TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS states (
	id INTEGER PRIMARY KEY,
	type TEXT NOT NULL,
	body BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS blobs (
	hash TEXT PRIMARY KEY,
	data BLOB
);`

// SQLite is a bundle stored in a SQLite database with one table each for
// the manifest, the records and the blobs.
type SQLite struct {
	Path string
}

// NewSQLite returns the SQLite bundle at path.
func NewSQLite(path string) *SQLite {
	return &SQLite{Path: path}
}

func (s *SQLite) open() (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bundle tables: %w", err)
	}
	return db, nil
}

// WriteBundle replaces the database content with b in one transaction.
func (s *SQLite) WriteBundle(ctx context.Context, b *Bundle) (retErr error) {
	b.Normalize()
	db, err := s.open()
	if err != nil {
		return fmt.Errorf("write sqlite bundle: %w", err)
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write sqlite bundle: begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"manifest", "states", "blobs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("write sqlite bundle: clear %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO manifest(id, body) VALUES(1, ?)`, string(MarshalManifest(&b.Manifest))); err != nil {
		return fmt.Errorf("write sqlite bundle: manifest: %w", err)
	}
	for _, rec := range b.States {
		if _, err := tx.ExecContext(ctx, `INSERT INTO states(id, type, body) VALUES(?, ?, ?)`,
			int64(rec.ID), string(rec.Type), object.MarshalState(rec)); err != nil {
			return fmt.Errorf("write sqlite bundle: state %d: %w", rec.ID, err)
		}
	}
	for _, bl := range b.Blobs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO blobs(hash, data) VALUES(?, ?)`, string(bl.Hash), bl.Data); err != nil {
			return fmt.Errorf("write sqlite bundle: blob %s: %w", bl.Hash.Short(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write sqlite bundle: commit: %w", err)
	}
	return nil
}

// ReadBundle loads the bundle stored in the database.
func (s *SQLite) ReadBundle(ctx context.Context) (*Bundle, error) {
	if _, err := os.Stat(s.Path); err != nil {
		return nil, fmt.Errorf("read sqlite bundle: %w", err)
	}
	db, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("read sqlite bundle: %w", err)
	}
	defer func() { _ = db.Close() }()

	var body string
	if err := db.QueryRowContext(ctx, `SELECT body FROM manifest WHERE id = 1`).Scan(&body); err != nil {
		return nil, fmt.Errorf("read sqlite bundle: manifest: %w", err)
	}
	m, err := UnmarshalManifest([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("read sqlite bundle: %w", err)
	}
	b := &Bundle{Manifest: *m}

	rows, err := db.QueryContext(ctx, `SELECT id, type, body FROM states ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read sqlite bundle: select states: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			id  int64
			typ string
			raw []byte
		)
		if err := rows.Scan(&id, &typ, &raw); err != nil {
			return nil, fmt.Errorf("read sqlite bundle: scan state: %w", err)
		}
		rec, err := object.UnmarshalState(raw)
		if err != nil {
			return nil, fmt.Errorf("read sqlite bundle: state %d: %w", id, err)
		}
		if int64(rec.ID) != id || string(rec.Type) != typ {
			return nil, fmt.Errorf("read sqlite bundle: state row %d (%s) holds record %d (%s)", id, typ, rec.ID, rec.Type)
		}
		b.States = append(b.States, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sqlite bundle: states: %w", err)
	}

	blobRows, err := db.QueryContext(ctx, `SELECT hash, data FROM blobs ORDER BY hash`)
	if err != nil {
		return nil, fmt.Errorf("read sqlite bundle: select blobs: %w", err)
	}
	defer func() { _ = blobRows.Close() }()
	for blobRows.Next() {
		var (
			h    string
			data []byte
		)
		if err := blobRows.Scan(&h, &data); err != nil {
			return nil, fmt.Errorf("read sqlite bundle: scan blob: %w", err)
		}
		b.Blobs = append(b.Blobs, Blob{Hash: object.Hash(h), Data: data})
	}
	if err := blobRows.Err(); err != nil {
		return nil, fmt.Errorf("read sqlite bundle: blobs: %w", err)
	}
	return b, nil
}
