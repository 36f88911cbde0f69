package catalog

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/oneconcern/kyla/internal/digest"
)

// FileRow mirrors one row of files, joined to its content object's digest
// and size for convenience.
type FileRow struct {
	LocalID         int64
	Path            string
	ContentObjectID int64
	Digest          digest.Digest
	Size            int64
	FileSetID       int64
}

// InsertFile inserts a files row binding path to contentObjectID within
// fileSetID.
func (c *Catalog) InsertFile(path string, contentObjectID, fileSetID int64) error {
	stmt := c.conn.Prep("INSERT INTO files (Path, ContentObjectId, FileSetId) VALUES (?, ?, ?);")
	defer stmt.Reset()
	stmt.BindText(1, path)
	stmt.BindInt64(2, contentObjectID)
	stmt.BindInt64(3, fileSetID)
	if _, err := stmt.Step(); err != nil {
		return fmt.Errorf("catalog: inserting files row for %s: %w", path, err)
	}
	return nil
}

// FilesForFileSet lists (digest, path) pairs for fileSetID, ordered by
// ContentObjectId to improve locality when the source side reads them
// back-to-back.
func (c *Catalog) FilesForFileSet(fileSetID int64) ([]FileRow, error) {
	var out []FileRow
	err := sqlitex.Execute(c.conn, `
		SELECT files.Id, files.Path, files.ContentObjectId, content_objects.Hash, content_objects.Size
		FROM files
		JOIN content_objects ON content_objects.Id = files.ContentObjectId
		WHERE files.FileSetId = ?
		ORDER BY files.ContentObjectId`, &sqlitex.ExecOptions{
		Args: []interface{}{fileSetID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var d digest.Digest
			raw := make([]byte, stmt.ColumnLen(3))
			stmt.ColumnBytes(3, raw)
			copy(d[:], raw)
			out = append(out, FileRow{
				LocalID:         stmt.ColumnInt64(0),
				Path:            stmt.ColumnText(1),
				ContentObjectID: stmt.ColumnInt64(2),
				Digest:          d,
				Size:            stmt.ColumnInt64(4),
				FileSetID:       fileSetID,
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: listing files for fileset %d: %w", fileSetID, err)
	}
	return out, nil
}

// FilesForDigest lists every (path, fileSetID) pair referencing digest d,
// across all file sets. The deployed repository uses this to write
// repaired bytes to every path sharing a ContentObject.
func (c *Catalog) FilesForDigest(d digest.Digest) ([]FileRow, error) {
	var out []FileRow
	err := sqlitex.Execute(c.conn, `
		SELECT files.Id, files.Path, files.ContentObjectId, files.FileSetId
		FROM files
		JOIN content_objects ON content_objects.Id = files.ContentObjectId
		WHERE content_objects.Hash = ?`, &sqlitex.ExecOptions{
		Args: []interface{}{d[:]},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, FileRow{
				LocalID:         stmt.ColumnInt64(0),
				Path:            stmt.ColumnText(1),
				ContentObjectID: stmt.ColumnInt64(2),
				Digest:          d,
				FileSetID:       stmt.ColumnInt64(3),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: listing files for digest %s: %w", d, err)
	}
	return out, nil
}

// AllFilesWithContentObjects lists every files row joined to its
// content_objects row, the basis of the deployed validator's per-file
// iteration: unlike the loose validator, which visits each
// ContentObject once, this visits each File separately so a digest shared
// by two paths gets validated twice.
func (c *Catalog) AllFilesWithContentObjects(visit func(FileRow) error) error {
	return sqlitex.Execute(c.conn, `
		SELECT files.Id, files.Path, files.ContentObjectId, content_objects.Hash, content_objects.Size, files.FileSetId
		FROM files
		JOIN content_objects ON content_objects.Id = files.ContentObjectId
		ORDER BY content_objects.Size ASC`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var d digest.Digest
			raw := make([]byte, stmt.ColumnLen(3))
			stmt.ColumnBytes(3, raw)
			copy(d[:], raw)
			return visit(FileRow{
				LocalID:         stmt.ColumnInt64(0),
				Path:            stmt.ColumnText(1),
				ContentObjectID: stmt.ColumnInt64(2),
				Digest:          d,
				Size:            stmt.ColumnInt64(4),
				FileSetID:       stmt.ColumnInt64(5),
			})
		},
	})
}

// DeleteFilesForFileSet removes every files row for fileSetID, the write
// half of configure's reconciliation.
func (c *Catalog) DeleteFilesForFileSet(fileSetID int64) error {
	err := sqlitex.Execute(c.conn, "DELETE FROM files WHERE FileSetId = ?;", &sqlitex.ExecOptions{
		Args: []interface{}{fileSetID},
	})
	if err != nil {
		return fmt.Errorf("catalog: clearing files for fileset %d: %w", fileSetID, err)
	}
	return nil
}
