// Package catalog is the relational store backing a repository: file_sets,
// files, content_objects and (for the packed layout) source_packages and
// storage_mapping. It consumes zombiezen.com/go/sqlite's prepared-statement
// interface (bind/step/column, savepoints for transactions) directly — the
// database engine itself is an external collaborator, not something this
// module implements.
//
// Catalog is not safe for concurrent use from multiple goroutines: a
// repository has a single writer, so one *sqlite.Conn is enough and a pool
// (as github.com/oneconcern/datamon's badger-backed stores or
// bureau-foundation-bureau/lib/sqlitepool use for multi-reader workloads)
// would be unexercised complexity here.
package catalog

import (
	"fmt"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Catalog owns the single connection to a repository's catalog database.
type Catalog struct {
	conn *sqlite.Conn
	path string
	log  *zap.Logger
}

// Open opens (creating if absent) the catalog database at path and applies
// the WAL+NORMAL pragmas the build and deploy paths expect while writing.
func Open(path string, log *zap.Logger) (*Catalog, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening %s: %w", path, err)
	}
	c := &Catalog{conn: conn, path: path, log: log}
	if err := c.SetJournalMode("WAL"); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA synchronous=NORMAL", nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("catalog: setting synchronous pragma: %w", err)
	}
	return c, nil
}

// OpenReadOnly opens an existing catalog for read-only access, without
// changing its journal mode. The repository layouts open their catalogs
// with Open.
func OpenReadOnly(path string, log *zap.Logger) (*Catalog, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening %s read-only: %w", path, err)
	}
	return &Catalog{conn: conn, path: path, log: log}, nil
}

// Conn returns the raw prepared-statement handle, an escape hatch for
// callers needing raw queries.
func (c *Catalog) Conn() *sqlite.Conn { return c.conn }

// Close releases the connection. Every prepared statement obtained from
// Conn() must be finalized before Close is called.
func (c *Catalog) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("catalog: closing %s: %w", c.path, err)
	}
	return nil
}

// SetJournalMode switches the catalog's journal mode, used to transition
// rollback -> WAL -> rollback around a build or deploy.
func (c *Catalog) SetJournalMode(mode string) error {
	if err := sqlitex.ExecuteTransient(c.conn, fmt.Sprintf("PRAGMA journal_mode=%s", mode), nil); err != nil {
		return fmt.Errorf("catalog: setting journal_mode=%s: %w", mode, err)
	}
	return nil
}

// Analyze runs ANALYZE, the performance contract at the end of build and
// deploy.
func (c *Catalog) Analyze() error {
	if err := sqlitex.ExecuteTransient(c.conn, "ANALYZE", nil); err != nil {
		return fmt.Errorf("catalog: ANALYZE: %w", err)
	}
	return nil
}

// WithTransaction runs fn inside a savepoint, committing on success and
// rolling back on error or panic. The builder's content_objects/files/
// storage_mapping inserts and every layout's Configure and deploy run
// through this helper, so readers see either the pre- or post-state of
// those writes. The builder inserts its file_sets rows before opening
// the transaction.
func (c *Catalog) WithTransaction(fn func() error) (err error) {
	release := sqlitex.Save(c.conn)
	defer release(&err)
	return fn()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS file_sets (
	Id   INTEGER PRIMARY KEY,
	Uuid BLOB(16) NOT NULL UNIQUE,
	Name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS content_objects (
	Id         INTEGER PRIMARY KEY,
	Hash       BLOB(32) NOT NULL UNIQUE,
	Size       INTEGER NOT NULL,
	ChunkCount INTEGER
);

CREATE TABLE IF NOT EXISTS files (
	Id              INTEGER PRIMARY KEY,
	Path            TEXT NOT NULL,
	ContentObjectId INTEGER NOT NULL REFERENCES content_objects(Id),
	FileSetId       INTEGER NOT NULL REFERENCES file_sets(Id)
);
CREATE INDEX IF NOT EXISTS files_fileset_idx ON files(FileSetId);
CREATE INDEX IF NOT EXISTS files_content_object_idx ON files(ContentObjectId);

CREATE TABLE IF NOT EXISTS source_packages (
	Id       INTEGER PRIMARY KEY,
	Name     TEXT NOT NULL,
	Filename TEXT NOT NULL,
	Uuid     BLOB(16) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS storage_mapping (
	ContentObjectId INTEGER NOT NULL REFERENCES content_objects(Id),
	SourcePackageId INTEGER NOT NULL REFERENCES source_packages(Id),
	PackageOffset   INTEGER NOT NULL,
	PackageSize     INTEGER NOT NULL,
	SourceOffset    INTEGER NOT NULL,
	Compression     INTEGER
);
CREATE INDEX IF NOT EXISTS storage_mapping_content_object_idx ON storage_mapping(ContentObjectId);
`

// ApplySchema creates every table and index kyla needs, if not already
// present. Safe to call on an existing, populated catalog.
func (c *Catalog) ApplySchema() error {
	if err := sqlitex.ExecuteScript(c.conn, schemaDDL, nil); err != nil {
		return fmt.Errorf("catalog: applying schema: %w", err)
	}
	return nil
}
