package catalog

import (
	"fmt"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// FileSetInfo is one row of catalog reflection data.
type FileSetInfo struct {
	LocalID int64 // the catalog's internal file_sets.Id, used as a join key
	UUID    uuid.UUID
	Name    string
}

// InsertFileSet creates a file_sets row and returns its local (catalog)
// id, used to bind files.FileSetId in later writes.
func (c *Catalog) InsertFileSet(id uuid.UUID, name string) (int64, error) {
	stmt := c.conn.Prep("INSERT INTO file_sets (Uuid, Name) VALUES (?, ?);")
	defer stmt.Reset()
	raw, err := id.MarshalBinary()
	if err != nil {
		return 0, fmt.Errorf("catalog: marshaling fileset uuid: %w", err)
	}
	stmt.BindBytes(1, raw)
	stmt.BindText(2, name)
	if _, err := stmt.Step(); err != nil {
		return 0, fmt.Errorf("catalog: inserting file_sets row: %w", err)
	}
	return c.conn.LastInsertRowID(), nil
}

// FileSetLocalID resolves a FileSet UUID to its local catalog id.
func (c *Catalog) FileSetLocalID(id uuid.UUID) (int64, bool, error) {
	raw, err := id.MarshalBinary()
	if err != nil {
		return 0, false, err
	}
	stmt := c.conn.Prep("SELECT Id FROM file_sets WHERE Uuid = ?;")
	defer stmt.Reset()
	stmt.BindBytes(1, raw)

	hasRow, err := stmt.Step()
	if err != nil {
		return 0, false, fmt.Errorf("catalog: looking up fileset %s: %w", id, err)
	}
	if !hasRow {
		return 0, false, nil
	}
	return stmt.GetInt64("Id"), true, nil
}

// FileSetName returns the human-readable name for a FileSet UUID.
func (c *Catalog) FileSetName(id uuid.UUID) (string, bool, error) {
	raw, err := id.MarshalBinary()
	if err != nil {
		return "", false, err
	}
	stmt := c.conn.Prep("SELECT Name FROM file_sets WHERE Uuid = ?;")
	defer stmt.Reset()
	stmt.BindBytes(1, raw)

	hasRow, err := stmt.Step()
	if err != nil {
		return "", false, fmt.Errorf("catalog: looking up fileset name %s: %w", id, err)
	}
	if !hasRow {
		return "", false, nil
	}
	return stmt.GetText("Name"), true, nil
}

// DeleteFileSet removes a file_sets row by local id. Callers must first
// remove its files rows (DeleteFilesForFileSet) to keep referential
// integrity.
func (c *Catalog) DeleteFileSet(localID int64) error {
	stmt := c.conn.Prep("DELETE FROM file_sets WHERE Id = ?;")
	defer stmt.Reset()
	stmt.BindInt64(1, localID)
	if _, err := stmt.Step(); err != nil {
		return fmt.Errorf("catalog: deleting file_sets row %d: %w", localID, err)
	}
	return nil
}

// FileSetInfos lists every FileSet, one row per set. Joining file_sets to
// files here would collapse every set sharing a digest into a single
// aggregated row unless grouped explicitly by file_sets.Id, so this query
// never joins files at all; a file count, if ever needed, belongs in a
// separate aggregate query.
func (c *Catalog) FileSetInfos() ([]FileSetInfo, error) {
	var out []FileSetInfo
	err := sqlitex.Execute(c.conn, "SELECT Id, Uuid, Name FROM file_sets ORDER BY Id;", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			raw := make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, raw)
			id, err := uuid.FromBytes(raw)
			if err != nil {
				return fmt.Errorf("catalog: decoding fileset uuid: %w", err)
			}
			out = append(out, FileSetInfo{
				LocalID: stmt.ColumnInt64(0),
				UUID:    id,
				Name:    stmt.ColumnText(2),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: listing file sets: %w", err)
	}
	return out, nil
}
