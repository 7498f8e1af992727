// Package project resolves the on-disk layout of a generated engine project.
//
// Every project lives in its own directory under the output root:
//
//	<output_root>/<name>/
//	  CMakeLists.txt, src/, config/   generated build inputs
//	  build/                          compiler output (with build/_deps)
//	  .build_cache/                   cache record, lock and history
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// CacheDirName is the per-project cache subdirectory
	CacheDirName = ".build_cache"

	// DefaultBuildDir is the build output directory relative to the project
	DefaultBuildDir = "build"

	// DefaultDepsDir is the dependency cache subtree inside the build directory
	DefaultDepsDir = "_deps"
)

// ErrInvalidProjectName is returned for names that cannot map to a single
// directory under the output root
var ErrInvalidProjectName = errors.New("invalid project name")

// ValidateName checks that name is usable as a single path element
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidProjectName)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidProjectName, name)
	}

	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidProjectName, name)
	}

	return nil
}

// Dir returns the project's output directory
func Dir(root, name string) string {
	return filepath.Join(root, name)
}

// CacheDir returns the project's .build_cache directory
func CacheDir(root, name string) string {
	return filepath.Join(root, name, CacheDirName)
}

// BuildDir returns the project's build output directory
func BuildDir(root, name, buildDir string) string {
	if buildDir == "" {
		buildDir = DefaultBuildDir
	}

	return filepath.Join(root, name, buildDir)
}

// ArtifactPaths lists the locations a compiled executable may be found at
func ArtifactPaths(root, name, buildDir string) []string {
	dir := BuildDir(root, name, buildDir)

	return []string{
		filepath.Join(dir, name),
		filepath.Join(dir, name+".exe"),
	}
}

// ArtifactPresent reports whether a previous build left a compiled
// executable behind
func ArtifactPresent(root, name, buildDir string) bool {
	for _, path := range ArtifactPaths(root, name, buildDir) {
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return true
		}
	}

	return false
}
