// Package installer presents the flat facade a CLI or embedding host
// drives: open repositories by path, list FileSets, and execute one of
// Install/Configure/Repair/Verify against a desired FileSet selection.
// Grounded on github.com/oneconcern/datamon/cmd/datamon/cmd's
// params-struct pattern shared by every subcommand.
package installer

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oneconcern/kyla/internal/catalog"
	"github.com/oneconcern/kyla/internal/errs"
	"github.com/oneconcern/kyla/internal/repo"
	"github.com/oneconcern/kyla/internal/repo/deployed"
	"github.com/oneconcern/kyla/internal/repo/loose"
	"github.com/oneconcern/kyla/internal/repo/packed"
)

// Action selects which repository operation Execute dispatches to.
type Action int

const (
	Install Action = iota
	Configure
	Repair
	Verify
)

// DesiredState names the FileSets a Configure/Install call should
// reconcile the target to.
type DesiredState struct {
	FileSetIDs []uuid.UUID
}

// LogCallback receives one structured log record (level, message, and
// fields) at a time.
type LogCallback func(level, msg string, fields map[string]interface{})

// ValidationCallback receives one ValidationRecord per object visited by
// Verify or Repair's internal validate pass.
type ValidationCallback func(repo.ValidationRecord) error

// ProgressCallback receives free-form progress text. Install and Configure
// each send one line stating how many FileSets they are handling.
type ProgressCallback func(string)

// Installer is the facade over a pair of repositories: an optional source
// and a target that every Action is executed against.
type Installer struct {
	log                *zap.Logger
	validationCallback ValidationCallback
	progressCallback   ProgressCallback

	source repo.Contract
	target repo.Contract
}

// New constructs an Installer with a default no-op logger. Callers needing
// structured logging should build one with internal/dlog and pass it in
// via WithLogger before opening any repository.
func New() *Installer {
	return &Installer{log: zap.NewNop()}
}

// WithLogger overrides the *zap.Logger every repository open call uses.
func (in *Installer) WithLogger(log *zap.Logger) *Installer {
	in.log = log
	return in
}

// SetLogCallback routes every subsequent log record through cb instead of
// in's current *zap.Logger sink, for hosts that want log records as plain
// values rather than owning a zap core.
func (in *Installer) SetLogCallback(cb LogCallback) {
	in.log = zap.New(callbackCore{cb: cb})
}

type callbackCore struct{ cb LogCallback }

func (callbackCore) Enabled(zapcore.Level) bool { return true }
func (c callbackCore) With(fields []zapcore.Field) zapcore.Core {
	return c
}
func (c callbackCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return ce.AddCore(e, c)
}
func (c callbackCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	m := make(map[string]interface{}, len(fields))
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	for k, v := range enc.Fields {
		m[k] = v
	}
	c.cb(e.Level.String(), e.Message, m)
	return nil
}
func (callbackCore) Sync() error { return nil }

// SetValidationCallback installs the callback Verify/Repair report
// per-object validation records to.
func (in *Installer) SetValidationCallback(cb ValidationCallback) { in.validationCallback = cb }

// SetProgressCallback installs the callback Install/Configure report
// their progress line to.
func (in *Installer) SetProgressCallback(cb ProgressCallback) { in.progressCallback = cb }

// OpenSourceRepository auto-detects and opens the repository at path as
// the source for subsequent Repair/Install/Configure calls.
func (in *Installer) OpenSourceRepository(path string) error {
	r, err := openRepository(path, in.log)
	if err != nil {
		return err
	}
	in.source = r
	return nil
}

// OpenTargetRepository auto-detects and opens the repository at path as
// the target for subsequent Execute calls.
func (in *Installer) OpenTargetRepository(path string) error {
	r, err := openRepository(path, in.log)
	if err != nil {
		return err
	}
	in.target = r
	return nil
}

// CloseRepository closes both open repositories, if any.
func (in *Installer) CloseRepository() error {
	var firstErr error
	if in.source != nil {
		if err := in.source.Close(); err != nil {
			firstErr = err
		}
		in.source = nil
	}
	if in.target != nil {
		if err := in.target.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		in.target = nil
	}
	return firstErr
}

// QueryFileSets lists every FileSet recorded in the target repository.
func (in *Installer) QueryFileSets() ([]catalog.FileSetInfo, error) {
	if in.target == nil {
		return nil, fmt.Errorf("installer: no target repository open")
	}
	return in.target.FileSetInfos()
}

// QueryFileSetName resolves a single FileSet UUID to its name.
func (in *Installer) QueryFileSetName(id uuid.UUID) (string, bool, error) {
	if in.target == nil {
		return "", false, fmt.Errorf("installer: no target repository open")
	}
	return in.target.FileSetName(id)
}

// Execute dispatches action against the open target (and, where needed,
// source) repository. target and source are the filesystem roots already
// passed to OpenTargetRepository/OpenSourceRepository; targetDir is only
// consulted for Install, where a fresh deployed repository may need
// creating at a path that does not exist yet.
func (in *Installer) Execute(ctx context.Context, action Action, targetDir string, desired *DesiredState) error {
	switch action {
	case Verify:
		return in.verify(ctx)
	case Repair:
		return in.repair(ctx)
	case Install:
		return in.install(ctx, targetDir, desired)
	case Configure:
		return in.configure(ctx, desired)
	default:
		return fmt.Errorf("installer: unknown action %d", action)
	}
}

func (in *Installer) verify(ctx context.Context) error {
	if in.target == nil {
		return fmt.Errorf("installer: no target repository open")
	}
	return in.target.Validate(ctx, func(rec repo.ValidationRecord) error {
		if in.validationCallback != nil {
			return in.validationCallback(rec)
		}
		return nil
	})
}

func (in *Installer) repair(ctx context.Context) error {
	if in.target == nil {
		return fmt.Errorf("installer: no target repository open")
	}
	if in.source == nil {
		return fmt.Errorf("installer: repair requires a source repository")
	}
	return in.target.Repair(ctx, in.source)
}

func (in *Installer) configure(ctx context.Context, desired *DesiredState) error {
	if in.target == nil {
		return fmt.Errorf("installer: no target repository open")
	}
	if in.source == nil {
		return fmt.Errorf("installer: configure requires a source repository")
	}
	if desired == nil {
		return fmt.Errorf("installer: configure requires a desired state")
	}
	in.report("configuring %d filesets", len(desired.FileSetIDs))
	return in.target.Configure(ctx, in.source, desired.FileSetIDs, in.log)
}

// install deploys a fresh target from source. It refuses to deploy into a
// non-empty directory; the installer never implicitly overwrites.
func (in *Installer) install(ctx context.Context, targetDir string, desired *DesiredState) error {
	if in.source == nil {
		return fmt.Errorf("installer: install requires a source repository")
	}
	if desired == nil {
		return fmt.Errorf("installer: install requires a desired state")
	}

	empty, err := dirEmpty(targetDir)
	if err != nil {
		return err
	}
	if !empty {
		return fmt.Errorf("installer: target %s is not empty, install does not overwrite; use configure", targetDir)
	}

	in.report("installing %d filesets into %s", len(desired.FileSetIDs), targetDir)
	r, err := deployed.CreateFrom(ctx, in.source, desired.FileSetIDs, targetDir, in.log)
	if err != nil {
		return err
	}
	if in.target != nil {
		_ = in.target.Close()
	}
	in.target = r
	return nil
}

func (in *Installer) report(format string, args ...interface{}) {
	if in.progressCallback != nil {
		in.progressCallback(fmt.Sprintf(format, args...))
	}
}

func dirEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, errs.WrapIO(path, err)
	}
	return len(entries) == 0, nil
}

// openRepository auto-detects path's on-disk layout and opens the
// matching backend.
func openRepository(path string, log *zap.Logger) (repo.Contract, error) {
	kind, err := repo.Detect(path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case repo.KindLoose:
		return loose.Open(path, log)
	case repo.KindDeployed:
		return deployed.Open(path, log)
	case repo.KindPacked:
		return packed.Open(path, log)
	default:
		return nil, fmt.Errorf("%s: %w", path, errs.ErrNotARepository)
	}
}
