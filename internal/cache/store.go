// Package cache decides whether a generated project's compiled dependencies
// can be reused.
//
// A project's build inputs (CMake configuration, generated main source and
// generated runtime config) are concatenated and hashed with SHA-256. After a
// successful build the hash is committed to the project's cache directory:
//
//	<output_root>/<project>/.build_cache/
//	  build_hash.json      {"deps_hash", "project_name", "cache_updated"}
//	  deps_manifest.json   {"project_name", "dependencies", "generated_at"}
//	  last_build_time.txt  epoch seconds
//	  cache.lock           advisory lock, not part of the record
//
// Validity is never stored. It is derived on every query by recomputing the
// hash and comparing it with the committed one, so a cache only stays valid
// while every tracked input is byte-identical to what was built.
//
// Every operation holds an exclusive file lock on cache.lock, which makes
// concurrent builds of the same project safe across processes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Norgate-AV/gebc/internal/project"
)

const (
	HashFileName      = "build_hash.json"
	ManifestFileName  = "deps_manifest.json"
	BuildTimeFileName = "last_build_time.txt"
)

// recordFiles are the files that together form a Record. The build time
// marker is written last on commit.
var recordFiles = []string{HashFileName, ManifestFileName, BuildTimeFileName}

// Store persists one cache record per project
type Store struct {
	OutputRoot  string
	LockTimeout time.Duration
	Logger      *slog.Logger

	now func() time.Time
}

// NewStore creates a store rooted at outputRoot
func NewStore(outputRoot string, lockTimeout time.Duration, logger *slog.Logger) *Store {
	return &Store{
		OutputRoot:  outputRoot,
		LockTimeout: lockTimeout,
		Logger:      logger,
	}
}

// Dir returns the cache directory of a project
func (s *Store) Dir(projectName string) string {
	return project.CacheDir(s.OutputRoot, projectName)
}

// Lock acquires the project's cache lock and returns a session for running
// several operations under it. The session must be unlocked.
func (s *Store) Lock(ctx context.Context, projectName string) (*Session, error) {
	if err := project.ValidateName(projectName); err != nil {
		return nil, err
	}

	dir := s.Dir(projectName)

	release, err := acquireLock(ctx, dir, s.LockTimeout)
	if err != nil {
		return nil, err
	}

	return &Session{store: s, project: projectName, dir: dir, release: release}, nil
}

// Load returns the project's cache record, or nil when any record file is
// missing or unparsable. Only locking failures are returned as errors.
func (s *Store) Load(ctx context.Context, projectName string) (*Record, error) {
	if err := project.ValidateName(projectName); err != nil {
		return nil, err
	}

	if !dirExists(s.Dir(projectName)) {
		return nil, nil
	}

	session, err := s.Lock(ctx, projectName)
	if err != nil {
		return nil, err
	}
	defer session.Unlock()

	return session.Load(), nil
}

// Commit persists a fingerprint and manifest as the project's record
func (s *Store) Commit(ctx context.Context, projectName string, fp Fingerprint, manifest Manifest) error {
	session, err := s.Lock(ctx, projectName)
	if err != nil {
		return err
	}
	defer session.Unlock()

	return session.Commit(fp, manifest)
}

// Invalidate removes the project's record files. Invalidating a project
// without a cache is a no-op.
func (s *Store) Invalidate(ctx context.Context, projectName string) error {
	if err := project.ValidateName(projectName); err != nil {
		return err
	}

	if !dirExists(s.Dir(projectName)) {
		return nil
	}

	session, err := s.Lock(ctx, projectName)
	if err != nil {
		return err
	}
	defer session.Unlock()

	return session.Invalidate()
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}

	return time.Now()
}

// Session is a locked view of one project's cache
type Session struct {
	store   *Store
	project string
	dir     string
	release func()
}

// Project returns the locked project's name
func (ss *Session) Project() string {
	return ss.project
}

// Unlock releases the cache lock. Safe to call more than once.
func (ss *Session) Unlock() {
	if ss.release != nil {
		ss.release()
		ss.release = nil
	}
}

// Load reads the record, returning nil when it is absent or corrupt
func (ss *Session) Load() *Record {
	log := logger(ss.store.Logger).With("project", ss.project)

	var hf hashFile
	if err := readJSON(filepath.Join(ss.dir, HashFileName), &hf); err != nil {
		log.Debug("no usable fingerprint", "error", err)
		return nil
	}

	var mf manifestFile
	if err := readJSON(filepath.Join(ss.dir, ManifestFileName), &mf); err != nil {
		log.Debug("no usable manifest", "error", err)
		return nil
	}

	raw, err := os.ReadFile(filepath.Join(ss.dir, BuildTimeFileName))
	if err != nil {
		log.Debug("no build time marker", "error", err)
		return nil
	}

	built, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		log.Debug("unparsable build time marker", "error", err)
		return nil
	}

	if hf.DepsHash == "" || hf.ProjectName != ss.project || mf.ProjectName != ss.project {
		log.Debug("cache record does not belong to project",
			"hash_project", hf.ProjectName, "manifest_project", mf.ProjectName)
		return nil
	}

	return &Record{
		Fingerprint: Fingerprint{
			ProjectName:    hf.ProjectName,
			DependencyHash: hf.DepsHash,
			ComputedAt:     fromEpoch(hf.CacheUpdated),
		},
		Manifest: Manifest{
			ProjectName:  mf.ProjectName,
			Dependencies: mf.Dependencies,
			GeneratedAt:  fromEpoch(mf.GeneratedAt),
		},
		LastBuildTime: fromEpoch(built),
	}
}

// Commit writes all three record files, each via write-then-rename
func (ss *Session) Commit(fp Fingerprint, manifest Manifest) error {
	if fp.ProjectName != "" && fp.ProjectName != ss.project {
		return fmt.Errorf("fingerprint for %q cannot be committed to %q", fp.ProjectName, ss.project)
	}

	if fp.DependencyHash == "" {
		return fmt.Errorf("cannot commit an empty dependency hash")
	}

	now := ss.store.clock()

	generated := manifest.GeneratedAt
	if generated.IsZero() {
		generated = now
	}

	deps := manifest.Dependencies
	if deps == nil {
		deps = []string{}
	}

	hashData, err := json.MarshalIndent(hashFile{
		DepsHash:     fp.DependencyHash,
		ProjectName:  ss.project,
		CacheUpdated: toEpoch(now),
	}, "", "  ")
	if err != nil {
		return err
	}

	manifestData, err := json.MarshalIndent(manifestFile{
		ProjectName:  ss.project,
		Dependencies: deps,
		GeneratedAt:  toEpoch(generated),
	}, "", "  ")
	if err != nil {
		return err
	}

	timeData := []byte(strconv.FormatFloat(toEpoch(now), 'f', 6, 64) + "\n")

	if err := os.MkdirAll(ss.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{HashFileName, hashData},
		{ManifestFileName, manifestData},
		{BuildTimeFileName, timeData},
	}

	for _, f := range files {
		if err := writeFileAtomic(filepath.Join(ss.dir, f.name), f.data, 0o644); err != nil {
			return fmt.Errorf("failed to commit cache for %s: %w", ss.project, err)
		}
	}

	logger(ss.store.Logger).Debug("cache committed", "project", ss.project, "hash", fp.DependencyHash)

	return nil
}

// Invalidate removes the record files, ignoring ones already gone
func (ss *Session) Invalidate() error {
	for _, name := range recordFiles {
		err := os.Remove(filepath.Join(ss.dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to invalidate cache for %s: %w", ss.project, err)
		}
	}

	logger(ss.store.Logger).Debug("cache invalidated", "project", ss.project)

	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
