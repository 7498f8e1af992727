package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Norgate-AV/gebc/internal/project"
)

// EmptyHash is the fingerprint of a project with none of its tracked inputs
// on disk: the SHA-256 of zero bytes. Non-strict calculators also return it
// when an input cannot be read.
const EmptyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// MissingDigest marks an absent input in InputDigests
const MissingDigest = "missing"

// HashError reports a tracked input that exists but could not be read
type HashError struct {
	Project string
	Path    string
	Err     error
}

func (e *HashError) Error() string {
	return fmt.Sprintf("failed to hash %s for project %s: %v", e.Path, e.Project, e.Err)
}

func (e *HashError) Unwrap() error {
	return e.Err
}

// Calculator computes dependency fingerprints from a project's build inputs
type Calculator struct {
	// OutputRoot holds one directory per project
	OutputRoot string

	// Inputs are hashed in order, relative to the project directory
	Inputs []string

	// Strict propagates read errors instead of falling back to EmptyHash
	Strict bool

	Logger *slog.Logger

	now func() time.Time
}

// NewCalculator creates a calculator over the given inputs
func NewCalculator(outputRoot string, inputs []string, strict bool, logger *slog.Logger) *Calculator {
	return &Calculator{
		OutputRoot: outputRoot,
		Inputs:     inputs,
		Strict:     strict,
		Logger:     logger,
	}
}

// Compute hashes the concatenated contents of every tracked input that
// exists. A missing input contributes nothing; any other read failure is
// returned as a *HashError.
func (c *Calculator) Compute(projectName string) (Fingerprint, error) {
	if err := project.ValidateName(projectName); err != nil {
		return Fingerprint{}, err
	}

	h := sha256.New()
	dir := project.Dir(c.OutputRoot, projectName)

	for _, input := range c.Inputs {
		path := filepath.Join(dir, filepath.FromSlash(input))

		if err := hashInto(h, path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return Fingerprint{}, &HashError{Project: projectName, Path: input, Err: err}
		}
	}

	return Fingerprint{
		ProjectName:    projectName,
		DependencyHash: hex.EncodeToString(h.Sum(nil)),
		ComputedAt:     c.clock(),
	}, nil
}

// Fingerprint applies the calculator's error policy to Compute. Non-strict
// calculators log the failure and return a Degraded EmptyHash fingerprint.
// Commits must use Compute.
func (c *Calculator) Fingerprint(projectName string) (Fingerprint, error) {
	fp, err := c.Compute(projectName)
	if err == nil {
		return fp, nil
	}

	var hashErr *HashError
	if c.Strict || !errors.As(err, &hashErr) {
		return Fingerprint{}, err
	}

	logger(c.Logger).Warn("fingerprint input unreadable, using empty hash",
		"project", projectName, "input", hashErr.Path, "error", hashErr.Err)

	return Fingerprint{
		ProjectName:    projectName,
		DependencyHash: EmptyHash,
		ComputedAt:     c.clock(),
		Degraded:       true,
	}, nil
}

// InputDigests returns the SHA-256 of each tracked input, or MissingDigest
func (c *Calculator) InputDigests(projectName string) (map[string]string, error) {
	if err := project.ValidateName(projectName); err != nil {
		return nil, err
	}

	dir := project.Dir(c.OutputRoot, projectName)
	digests := make(map[string]string, len(c.Inputs))

	for _, input := range c.Inputs {
		sum, err := HashFile(filepath.Join(dir, filepath.FromSlash(input)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				digests[input] = MissingDigest
				continue
			}

			return nil, &HashError{Project: projectName, Path: input, Err: err}
		}

		digests[input] = sum
	}

	return digests, nil
}

func (c *Calculator) clock() time.Time {
	if c.now != nil {
		return c.now()
	}

	return time.Now()
}

// hashInto streams a file's content into h
func hashInto(h hash.Hash, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	_, err = io.Copy(h, f)
	return err
}

// HashFile returns the hex SHA-256 of a file's content
func HashFile(path string) (string, error) {
	h := sha256.New()
	if err := hashInto(h, path); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}

	return slog.New(slog.DiscardHandler)
}
