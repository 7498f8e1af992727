// Package build selects a build mode for a project and drives the engine to
// perform it.
//
// A build holds the project's cache lock from decision to commit, so two
// builds of the same project never interleave. The fingerprint is committed
// only when the engine reports success; a failed, timed out or cancelled
// build leaves the previous record untouched so a retry is judged against
// the last known-good state.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Norgate-AV/gebc/internal/cache"
	"github.com/Norgate-AV/gebc/internal/config"
	"github.com/Norgate-AV/gebc/internal/engine"
	"github.com/Norgate-AV/gebc/internal/history"
	"github.com/Norgate-AV/gebc/internal/project"
)

// ErrProjectNotFound is returned when the project directory does not exist
var ErrProjectNotFound = errors.New("project not found")

// Engine runs engine commands
type Engine interface {
	Run(ctx context.Context, timeout time.Duration, commands ...string) (*engine.Result, error)
}

// Timeouts bounds each mode's engine invocation
type Timeouts struct {
	Fast        time.Duration
	Incremental time.Duration
	Full        time.Duration
}

// For returns the timeout of a mode
func (t Timeouts) For(m Mode) time.Duration {
	switch m {
	case ModeFast:
		return t.Fast
	case ModeIncremental:
		return t.Incremental
	default:
		return t.Full
	}
}

// Options control a single build
type Options struct {
	// ForceFull skips the cache and always runs a full build
	ForceFull bool

	// DryRun decides the mode without invoking the engine
	DryRun bool
}

// Report describes a build attempt
type Report struct {
	BuildID  string
	Project  string
	Decision Decision

	// Result is the engine invocation, nil for dry runs
	Result *engine.Result

	// Fallback is set when the engine lacked the incremental command and a
	// regular build ran on the existing tree instead
	Fallback bool

	Duration time.Duration

	// Committed reports whether the new fingerprint was persisted
	Committed bool
	Hash      string

	// CommitErr explains a successful build whose fingerprint could not be
	// committed. The next build then runs as if the cache were cold.
	CommitErr error
}

// BuildError is a failed engine build
type BuildError struct {
	Project string
	Mode    Mode
	Result  *engine.Result
	Err     error
}

func (e *BuildError) Error() string {
	msg := e.Result.ErrorMessage()
	if e.Err != nil {
		msg = e.Err.Error()
	}

	return fmt.Sprintf("%s build of %s failed: %s", e.Mode, e.Project, msg)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Builder selects a mode, runs the engine and commits the cache
type Builder struct {
	*Selector

	Store        *cache.Store
	Calculator   *cache.Calculator
	Engine       Engine
	Timeouts     Timeouts
	Dependencies []string

	// HistoryLimit is the number of records kept per project, 0 keeps all
	HistoryLimit int
	NoHistory    bool

	Logger *slog.Logger

	now func() time.Time
}

// New wires a builder from configuration
func New(cfg *config.Config, eng Engine, logger *slog.Logger) *Builder {
	store := cache.NewStore(cfg.OutputRoot, cfg.LockTimeout, logger)
	calc := cache.NewCalculator(cfg.OutputRoot, cfg.HashInputs, cfg.StrictHash, logger)
	oracle := cache.NewOracle(store, calc)

	return &Builder{
		Selector:   NewSelector(oracle, cfg.BuildDir),
		Store:      store,
		Calculator: calc,
		Engine:     eng,
		Timeouts: Timeouts{
			Fast:        cfg.FastTimeout,
			Incremental: cfg.IncrementalTimeout,
			Full:        cfg.FullTimeout,
		},
		Dependencies: cfg.Dependencies,
		HistoryLimit: cfg.HistoryLimit,
		NoHistory:    cfg.NoHistory,
		Logger:       logger,
	}
}

// Build decides the project's mode, runs it and commits on success
func (b *Builder) Build(ctx context.Context, projectName string, opts Options) (*Report, error) {
	if err := project.ValidateName(projectName); err != nil {
		return nil, err
	}

	dir := project.Dir(b.OutputRoot, projectName)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, dir)
	}

	session, err := b.Store.Lock(ctx, projectName)
	if err != nil {
		return nil, err
	}
	defer session.Unlock()

	log := b.logger().With("project", projectName)

	decision := b.selectLocked(session, opts.ForceFull)
	report := &Report{
		BuildID:  history.NewID(),
		Project:  projectName,
		Decision: decision,
	}

	log.Info("build mode selected", "mode", decision.Mode, "reason", decision.Reason)

	if opts.DryRun {
		return report, nil
	}

	started := b.clock()
	res, runErr := b.run(ctx, projectName, decision.Mode)

	if decision.Mode == ModeIncremental && runErr == nil && !res.OK() {
		if resp, ok := res.Failed(); ok && resp.IsUnknownCommand() {
			log.Warn("engine has no incremental build command, rebuilding on the existing tree")
			report.Fallback = true
			res, runErr = b.runCommand(ctx, projectName, ModeFull.Command(), b.Timeouts.Full)
		}
	}

	report.Result = res
	report.Duration = b.clock().Sub(started)

	if runErr != nil || !res.OK() {
		buildErr := &BuildError{Project: projectName, Mode: decision.Mode, Result: res, Err: runErr}
		log.Error("build failed, cache left unchanged", "mode", decision.Mode, "error", buildErr)
		b.record(projectName, report, started, buildErr)

		return report, buildErr
	}

	b.commit(session, report)
	b.record(projectName, report, started, nil)

	return report, nil
}

// commit fingerprints the freshly built inputs. Failures are reported but
// never fail a build that succeeded. An unreadable input always skips the
// commit, whatever the hash policy.
func (b *Builder) commit(session *cache.Session, report *Report) {
	log := b.logger().With("project", report.Project)

	fp, err := b.Calculator.Compute(report.Project)
	if err != nil {
		report.CommitErr = err
		log.Warn("build succeeded but inputs could not be fingerprinted, cache not committed", "error", err)
		return
	}

	manifest := cache.BuildManifest(b.OutputRoot, report.Project, b.Dependencies, b.clock())

	if err := session.Commit(fp, manifest); err != nil {
		report.CommitErr = err
		log.Warn("build succeeded but cache commit failed", "error", err)
		return
	}

	report.Committed = true
	report.Hash = fp.DependencyHash
}

func (b *Builder) run(ctx context.Context, projectName string, mode Mode) (*engine.Result, error) {
	return b.runCommand(ctx, projectName, mode.Command(), b.Timeouts.For(mode))
}

func (b *Builder) runCommand(ctx context.Context, projectName, command string, timeout time.Duration) (*engine.Result, error) {
	return b.Engine.Run(ctx, timeout, "project.open "+projectName, command)
}

// record appends the attempt to the project's history. Best effort.
func (b *Builder) record(projectName string, report *Report, started time.Time, buildErr error) {
	if b.NoHistory {
		return
	}

	log := b.logger().With("project", projectName)

	h, err := history.Open(filepath.Join(project.CacheDir(b.OutputRoot, projectName), history.FileName))
	if err != nil {
		log.Warn("build history unavailable", "error", err)
		return
	}
	defer h.Close()

	rec := &history.Record{
		ID:        report.BuildID,
		Project:   projectName,
		Mode:      string(report.Decision.Mode),
		Reason:    report.Decision.Reason,
		Success:   buildErr == nil,
		Fallback:  report.Fallback,
		StartedAt: started,
		Duration:  report.Duration,
		Hash:      report.Hash,
	}

	// Failed or uncommitted builds record the inputs they left behind
	if rec.Hash == "" {
		if fp, err := b.Calculator.Compute(projectName); err == nil {
			rec.Hash = fp.DependencyHash
		}
	}

	if report.Result != nil {
		rec.ExitCode = report.Result.ExitCode
		rec.Output = capturedOutput(report.Result)
	}

	if buildErr != nil {
		rec.Error = buildErr.Error()
	}

	if err := h.Append(rec); err != nil {
		log.Warn("failed to record build", "error", err)
		return
	}

	if _, err := h.Prune(b.HistoryLimit); err != nil {
		log.Warn("failed to prune build history", "error", err)
	}
}

// capturedOutput keeps the raw streams so failed builds stay diagnosable
func capturedOutput(res *engine.Result) string {
	var sb strings.Builder

	sb.WriteString(res.Stdout)
	if res.Stderr != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n--- stderr ---\n")
		}
		sb.WriteString(res.Stderr)
	}

	return sb.String()
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}

	return slog.New(slog.DiscardHandler)
}

func (b *Builder) clock() time.Time {
	if b.now != nil {
		return b.now()
	}

	return time.Now()
}
