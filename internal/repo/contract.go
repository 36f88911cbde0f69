// Package repo defines the repository contract: the polymorphic operation
// set every layout (loose, deployed, packed) implements uniformly.
// Construction picks a concrete implementation by filesystem probing,
// mirroring how
// github.com/oneconcern/datamon/pkg/storage.Store is implemented by
// localfs/gcs/sthree behind one interface, generalized here to the three
// on-disk layouts instead of three remote backends.
package repo

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oneconcern/kyla/internal/catalog"
	"github.com/oneconcern/kyla/internal/digest"
	"github.com/oneconcern/kyla/internal/errs"
)

// ValidationRecord is one per-object report emitted by Validate: a digest and the verdict reached about its bytes. It is never an
// error — validation faults are reported, not raised.
type ValidationRecord struct {
	Digest digest.Digest
	Kind   errs.ValidationFaultKind
	Size   int64
}

// ContentSink receives one (digest, bytes) pair per requested digest from
// GetContentObjects. The byte slice is only valid for the duration of the
// call.
type ContentSink func(d digest.Digest, data []byte) error

// Contract is the operation set every repository layout implements. Each operation is total over valid inputs and reports, rather than
// raises, data-integrity faults.
type Contract interface {
	// Validate visits each content object (ascending size) and reports
	// Ok/Missing/Corrupted via report. It returns an error only for
	// catalog or I/O faults, never for a validation fault itself.
	Validate(ctx context.Context, report func(ValidationRecord) error) error

	// GetContentObjects invokes sink exactly once per requested digest,
	// with zero-copy bytes where feasible. It returns errs.ErrUnknownObject
	// (wrapped) if a digest has no content_objects row.
	GetContentObjects(ctx context.Context, digests []digest.Digest, sink ContentSink) error

	// Repair validates, then for every non-Ok record fetches the object
	// from source and rewrites the local copy in place. Idempotent.
	Repair(ctx context.Context, source Contract) error

	// Configure reconciles the FileSets materialized locally against
	// filesetIDs, adding and removing Files to match.
	Configure(ctx context.Context, source Contract, filesetIDs []uuid.UUID, log *zap.Logger) error

	// FileSetInfos lists every FileSet in the catalog, one row each.
	FileSetInfos() ([]catalog.FileSetInfo, error)

	// FileSetName resolves a FileSet UUID to its human-readable name.
	FileSetName(id uuid.UUID) (string, bool, error)

	// Database is the escape hatch returning a handle to the catalog
	// for callers needing raw queries.
	Database() *catalog.Catalog

	// Root returns the repository's root directory.
	Root() string

	// Close releases the catalog connection and any other held
	// resources.
	Close() error
}

// Kind identifies which on-disk layout a repository root uses.
type Kind int

const (
	// KindLoose is one file per content object under a hidden directory.
	KindLoose Kind = iota
	// KindDeployed is content objects materialized at real target paths.
	KindDeployed
	// KindPacked is objects concatenated into package files.
	KindPacked
)

func (k Kind) String() string {
	switch k {
	case KindLoose:
		return "loose"
	case KindDeployed:
		return "deployed"
	case KindPacked:
		return "packed"
	default:
		return "unknown"
	}
}
