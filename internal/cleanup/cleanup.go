// Package cleanup removes a project's build output.
//
// A preserving clean keeps the fetched dependency tree (build/_deps) so the
// next full build does not download and compile third-party libraries
// again. Before anything is deleted the build directory is scanned for
// symlinks that resolve outside the project; one such link aborts the clean
// with nothing removed.
package cleanup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Norgate-AV/gebc/internal/project"
)

// Options control what a clean keeps
type Options struct {
	// PreserveDeps keeps DepsDir at the top level of the build directory
	PreserveDeps bool

	// DepsDir is the dependency subtree name, "_deps" when empty
	DepsDir string
}

// Result lists what a clean removed
type Result struct {
	// Removed holds the deleted paths, sorted
	Removed []string

	// Preserved is set when the dependency tree existed and was kept
	Preserved bool
}

// SymlinkEscapeError aborts a clean whose build directory links outside
// the project
type SymlinkEscapeError struct {
	Link   string
	Target string
}

func (e *SymlinkEscapeError) Error() string {
	return fmt.Sprintf("refusing to clean: symlink %s points outside the project (%s)", e.Link, e.Target)
}

// Clean deletes buildDir, or with PreserveDeps everything in it except the
// dependency tree. A missing build directory is not an error.
func Clean(projectDir, buildDir string, opts Options) (*Result, error) {
	depsDir := opts.DepsDir
	if depsDir == "" {
		depsDir = project.DefaultDepsDir
	}

	projectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	buildDir, err = filepath.Abs(buildDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve build directory: %w", err)
	}

	if !within(projectDir, buildDir) || buildDir == projectDir {
		return nil, fmt.Errorf("build directory %s is not inside project %s", buildDir, projectDir)
	}

	info, err := os.Lstat(buildDir)
	if errors.Is(err, fs.ErrNotExist) {
		return &Result{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat build directory: %w", err)
	}

	roots := projectRoots(projectDir)

	// A linked build directory is unlinked, never emptied through the link
	if info.Mode()&fs.ModeSymlink != 0 {
		if err := checkLink(roots, buildDir); err != nil {
			return nil, err
		}

		if err := os.Remove(buildDir); err != nil {
			return nil, fmt.Errorf("failed to remove build directory link: %w", err)
		}

		return &Result{Removed: []string{buildDir}}, nil
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("build directory %s is not a directory", buildDir)
	}

	skip := ""
	if opts.PreserveDeps {
		skip = filepath.Join(buildDir, depsDir)
	}

	if err := scan(roots, buildDir, skip); err != nil {
		return nil, err
	}

	if !opts.PreserveDeps {
		if err := os.RemoveAll(buildDir); err != nil {
			return nil, fmt.Errorf("failed to remove build directory: %w", err)
		}

		return &Result{Removed: []string{buildDir}}, nil
	}

	return removeExcept(buildDir, depsDir)
}

func removeExcept(buildDir, keep string) (*Result, error) {
	entries, err := os.ReadDir(buildDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read build directory: %w", err)
	}

	res := &Result{}

	for _, entry := range entries {
		path := filepath.Join(buildDir, entry.Name())

		if entry.Name() == keep {
			res.Preserved = true
			continue
		}

		// RemoveAll unlinks symlinks without following them
		if err := os.RemoveAll(path); err != nil {
			sort.Strings(res.Removed)
			return res, fmt.Errorf("failed to remove %s: %w", path, err)
		}

		res.Removed = append(res.Removed, path)
	}

	sort.Strings(res.Removed)

	return res, nil
}

// scan walks buildDir without following links and rejects the first link
// that escapes the project. The skip subtree is not entered.
func scan(roots []string, buildDir, skip string) error {
	return filepath.WalkDir(buildDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", path, err)
		}

		if skip != "" && path == skip {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return checkLink(roots, path)
		}

		return nil
	})
}

func checkLink(roots []string, link string) error {
	target, err := os.Readlink(link)
	if err != nil {
		return fmt.Errorf("failed to read symlink %s: %w", link, err)
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}

	// Dangling links are judged by where they point
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}

	target = filepath.Clean(target)

	for _, root := range roots {
		if within(root, target) {
			return nil
		}
	}

	return &SymlinkEscapeError{Link: link, Target: target}
}

// projectRoots returns the project directory as given and as resolved, so a
// project under a linked output root still contains its own links
func projectRoots(projectDir string) []string {
	roots := []string{projectDir}

	if resolved, err := filepath.EvalSymlinks(projectDir); err == nil && resolved != projectDir {
		roots = append(roots, resolved)
	}

	return roots
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
