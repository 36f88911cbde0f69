package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oneconcern/kyla/internal/errs"
)

// Path layout constants shared by the three backends and by Detect.
const (
	LooseDirName      = ".ky"
	LooseCatalogName  = "repository.db"
	LooseObjectsDir   = "objects"
	DeployedCatalog   = "k.db"
	PackedCatalogName = "repository.db"
	PackedPackageName = "data.kypkg"
)

// LooseCatalogPath returns <root>/.ky/repository.db.
func LooseCatalogPath(root string) string {
	return filepath.Join(root, LooseDirName, LooseCatalogName)
}

// LooseObjectsPath returns <root>/.ky/objects.
func LooseObjectsPath(root string) string {
	return filepath.Join(root, LooseDirName, LooseObjectsDir)
}

// LooseObjectPath returns <root>/.ky/objects/<hex(digest)>.
func LooseObjectPath(root string, hex string) string {
	return filepath.Join(LooseObjectsPath(root), hex)
}

// DeployedCatalogPath returns <root>/k.db.
func DeployedCatalogPath(root string) string {
	return filepath.Join(root, DeployedCatalog)
}

// PackedCatalogPath returns <root>/repository.db.
func PackedCatalogPath(root string) string {
	return filepath.Join(root, PackedCatalogName)
}

// PackedPackagePath returns <root>/data.kypkg.
func PackedPackagePath(root string) string {
	return filepath.Join(root, PackedPackageName)
}

// Detect probes root's filesystem layout:
//
//	<path>/.ky/                              exists -> loose
//	<path>/k.db                               exists -> deployed
//	<path>/repository.db + <path>/data.kypkg  exist  -> packed
//	otherwise                                        -> NotARepository
func Detect(root string) (Kind, error) {
	if exists(filepath.Join(root, LooseDirName)) {
		return KindLoose, nil
	}
	if exists(DeployedCatalogPath(root)) {
		return KindDeployed, nil
	}
	if exists(PackedCatalogPath(root)) && exists(PackedPackagePath(root)) {
		return KindPacked, nil
	}
	return 0, fmt.Errorf("%s: %w", root, errs.ErrNotARepository)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
