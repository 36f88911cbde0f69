package catalog

import (
	"fmt"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/oneconcern/kyla/internal/digest"
)

// NullCompression is the storage_mapping.Compression value meaning "raw
// copy, no compression".
const NullCompression = 0

// InsertSourcePackage inserts a source_packages row and returns its local
// id.
func (c *Catalog) InsertSourcePackage(name, filename string, id uuid.UUID) (int64, error) {
	raw, err := id.MarshalBinary()
	if err != nil {
		return 0, err
	}
	stmt := c.conn.Prep("INSERT INTO source_packages (Name, Filename, Uuid) VALUES (?, ?, ?);")
	defer stmt.Reset()
	stmt.BindText(1, name)
	stmt.BindText(2, filename)
	stmt.BindBytes(3, raw)
	if _, err := stmt.Step(); err != nil {
		return 0, fmt.Errorf("catalog: inserting source_packages row: %w", err)
	}
	return c.conn.LastInsertRowID(), nil
}

// EnsureSourcePackage returns the source_packages.Id for filename,
// inserting a row with a freshly generated uuid the first time this
// package file is referenced.
func (c *Catalog) EnsureSourcePackage(filename string) (int64, error) {
	stmt := c.conn.Prep("SELECT Id FROM source_packages WHERE Filename = ? LIMIT 1;")
	stmt.BindText(1, filename)
	hasRow, err := stmt.Step()
	if err != nil {
		stmt.Reset()
		return 0, fmt.Errorf("catalog: looking up source_packages row: %w", err)
	}
	if hasRow {
		id := stmt.GetInt64("Id")
		stmt.Reset()
		return id, nil
	}
	stmt.Reset()

	return c.InsertSourcePackage(filename, filename, uuid.New())
}

// InsertStorageMapping records where a content object's bytes live inside
// a package.
func (c *Catalog) InsertStorageMapping(contentObjectID, sourcePackageID, packageOffset, packageSize, sourceOffset int64, compression int64) error {
	stmt := c.conn.Prep(`
		INSERT INTO storage_mapping
			(ContentObjectId, SourcePackageId, PackageOffset, PackageSize, SourceOffset, Compression)
		VALUES (?, ?, ?, ?, ?, ?)`)
	defer stmt.Reset()
	stmt.BindInt64(1, contentObjectID)
	stmt.BindInt64(2, sourcePackageID)
	stmt.BindInt64(3, packageOffset)
	stmt.BindInt64(4, packageSize)
	stmt.BindInt64(5, sourceOffset)
	stmt.BindInt64(6, compression)
	if _, err := stmt.Step(); err != nil {
		return fmt.Errorf("catalog: inserting storage_mapping row: %w", err)
	}
	return nil
}

// StorageLocation resolves a digest to the package file and byte window
// holding its bytes, the sole index into package bodies.
type StorageLocation struct {
	PackageFilename string
	Offset          int64
	Length          int64
	SourceOffset    int64
	Compression     int64
}

// StorageLocationForDigest resolves where d's bytes live.
func (c *Catalog) StorageLocationForDigest(d digest.Digest) (StorageLocation, bool, error) {
	stmt := c.conn.Prep(`
		SELECT source_packages.Filename, storage_mapping.PackageOffset, storage_mapping.PackageSize,
		       storage_mapping.SourceOffset, storage_mapping.Compression
		FROM storage_mapping
		JOIN content_objects ON content_objects.Id = storage_mapping.ContentObjectId
		JOIN source_packages ON source_packages.Id = storage_mapping.SourcePackageId
		WHERE content_objects.Hash = ?
		LIMIT 1`)
	defer stmt.Reset()
	stmt.BindBytes(1, d[:])

	hasRow, err := stmt.Step()
	if err != nil {
		return StorageLocation{}, false, fmt.Errorf("catalog: resolving storage location for %s: %w", d, err)
	}
	if !hasRow {
		return StorageLocation{}, false, nil
	}
	loc := StorageLocation{
		PackageFilename: stmt.GetText("Filename"),
		Offset:          stmt.GetInt64("PackageOffset"),
		Length:          stmt.GetInt64("PackageSize"),
		SourceOffset:    stmt.GetInt64("SourceOffset"),
		Compression:     stmt.GetInt64("Compression"),
	}
	return loc, true, nil
}

// AllStorageMappings visits every storage_mapping row joined to its
// content object, the iteration validate uses for the packed layout.
func (c *Catalog) AllStorageMappings(visit func(ContentObjectRow, StorageLocation) error) error {
	return sqlitex.Execute(c.conn, `
		SELECT content_objects.Id, content_objects.Hash, content_objects.Size, content_objects.ChunkCount,
		       source_packages.Filename, storage_mapping.PackageOffset, storage_mapping.PackageSize,
		       storage_mapping.SourceOffset, storage_mapping.Compression
		FROM storage_mapping
		JOIN content_objects ON content_objects.Id = storage_mapping.ContentObjectId
		JOIN source_packages ON source_packages.Id = storage_mapping.SourcePackageId
		ORDER BY content_objects.Size ASC`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var d digest.Digest
			raw := make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, raw)
			copy(d[:], raw)

			obj := ContentObjectRow{LocalID: stmt.ColumnInt64(0), Digest: d, Size: stmt.ColumnInt64(2)}
			if stmt.ColumnType(3) != sqlite.TypeNull {
				cc := stmt.ColumnInt64(3)
				obj.ChunkCount = &cc
			}
			loc := StorageLocation{
				PackageFilename: stmt.ColumnText(4),
				Offset:          stmt.ColumnInt64(5),
				Length:          stmt.ColumnInt64(6),
				SourceOffset:    stmt.ColumnInt64(7),
				Compression:     stmt.ColumnInt64(8),
			}
			return visit(obj, loc)
		},
	})
}
