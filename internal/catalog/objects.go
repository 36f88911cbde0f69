package catalog

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/oneconcern/kyla/internal/digest"
)

// ContentObjectRow mirrors one row of content_objects.
type ContentObjectRow struct {
	LocalID    int64
	Digest     digest.Digest
	Size       int64
	ChunkCount *int64
}

// InsertContentObject inserts a content_objects row and returns its local
// id. Callers must ensure the digest is not already present; a UNIQUE constraint on Hash
// turns a duplicate insert into a catalog error rather than silent data
// corruption.
func (c *Catalog) InsertContentObject(d digest.Digest, size int64, chunkCount *int64) (int64, error) {
	stmt := c.conn.Prep("INSERT INTO content_objects (Hash, Size, ChunkCount) VALUES (?, ?, ?);")
	defer stmt.Reset()
	stmt.BindBytes(1, d[:])
	stmt.BindInt64(2, size)
	if chunkCount != nil {
		stmt.BindInt64(3, *chunkCount)
	} else {
		stmt.BindNull(3)
	}
	if _, err := stmt.Step(); err != nil {
		return 0, fmt.Errorf("catalog: inserting content_objects row for %s: %w", d, err)
	}
	return c.conn.LastInsertRowID(), nil
}

// ContentObjectByDigest looks up a content_objects row by digest.
func (c *Catalog) ContentObjectByDigest(d digest.Digest) (ContentObjectRow, bool, error) {
	stmt := c.conn.Prep("SELECT Id, Size, ChunkCount FROM content_objects WHERE Hash = ?;")
	defer stmt.Reset()
	stmt.BindBytes(1, d[:])

	hasRow, err := stmt.Step()
	if err != nil {
		return ContentObjectRow{}, false, fmt.Errorf("catalog: looking up content object %s: %w", d, err)
	}
	if !hasRow {
		return ContentObjectRow{}, false, nil
	}
	row := ContentObjectRow{LocalID: stmt.GetInt64("Id"), Digest: d, Size: stmt.GetInt64("Size")}
	if stmt.ColumnType(2) != sqlite.TypeNull {
		cc := stmt.GetInt64("ChunkCount")
		row.ChunkCount = &cc
	}
	return row, true, nil
}

// ContentObjectsBySizeAscending visits every content_objects row ordered
// by ascending size, the iteration order validate uses to maximize
// progress granularity.
func (c *Catalog) ContentObjectsBySizeAscending(visit func(ContentObjectRow) error) error {
	return sqlitex.Execute(c.conn, "SELECT Id, Hash, Size, ChunkCount FROM content_objects ORDER BY Size ASC;", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var d digest.Digest
			raw := make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, raw)
			copy(d[:], raw)

			row := ContentObjectRow{
				LocalID: stmt.ColumnInt64(0),
				Digest:  d,
				Size:    stmt.ColumnInt64(2),
			}
			if stmt.ColumnType(3) != sqlite.TypeNull {
				cc := stmt.ColumnInt64(3)
				row.ChunkCount = &cc
			}
			return visit(row)
		},
	})
}
