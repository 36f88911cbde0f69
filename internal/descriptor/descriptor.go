// Package descriptor reads a build manifest listing FileSets and their
// member files. The manifest parser itself is an external collaborator
// kyla treats as swappable; this package supplies a concrete YAML-based
// reader (gopkg.in/yaml.v3) so the builder has a testable input format.
package descriptor

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// PackageType selects which backend the builder writes to.
type PackageType string

const (
	PackageLoose  PackageType = "Loose"
	PackagePacked PackageType = "Packed"
)

// File is one source/target pair inside a FileSet.
type File struct {
	Source string `yaml:"source"`
	// Target defaults to Source when empty.
	Target string `yaml:"target,omitempty"`
}

// FileSet is one named, UUID-identified group of files.
type FileSet struct {
	ID    uuid.UUID `yaml:"id"`
	Name  string    `yaml:"name"`
	Files []File    `yaml:"files"`
}

// Manifest is the parsed form of a build descriptor.
type Manifest struct {
	Package struct {
		Type PackageType `yaml:"type"`
	} `yaml:"package"`
	FileSets []FileSet `yaml:"fileSets"`
}

type yamlFile struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

type yamlFileSet struct {
	ID    string     `yaml:"id"`
	Name  string     `yaml:"name"`
	Files []yamlFile `yaml:"files"`
}

type yamlManifest struct {
	Package struct {
		Type string `yaml:"type"`
	} `yaml:"package"`
	FileSets []yamlFileSet `yaml:"fileSets"`
}

// Parse decodes a descriptor document, defaulting every File.Target to its
// Source and validating that every FileSet carries a well-formed UUID.
func Parse(data []byte) (*Manifest, error) {
	var raw yamlManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("descriptor: parsing manifest: %w", err)
	}

	m := &Manifest{}
	switch PackageType(raw.Package.Type) {
	case PackageLoose, PackagePacked:
		m.Package.Type = PackageType(raw.Package.Type)
	default:
		return nil, fmt.Errorf("descriptor: unrecognized package type %q, want Loose or Packed", raw.Package.Type)
	}

	for _, rfs := range raw.FileSets {
		id, err := uuid.Parse(rfs.ID)
		if err != nil {
			return nil, fmt.Errorf("descriptor: fileset %q: invalid id %q: %w", rfs.Name, rfs.ID, err)
		}
		fs := FileSet{ID: id, Name: rfs.Name}
		for _, rf := range rfs.Files {
			f := File{Source: rf.Source, Target: rf.Target}
			if f.Target == "" {
				f.Target = f.Source
			}
			fs.Files = append(fs.Files, f)
		}
		m.FileSets = append(m.FileSets, fs)
	}
	return m, nil
}

// Load reads and parses a descriptor file from path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("descriptor: reading %s: %w", path, err)
	}
	return Parse(data)
}
