package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInputs = []string{"CMakeLists.txt", "src/main.cpp", "config/game_config.json"}

// writeInput creates a tracked input for a project under root
func writeInput(t *testing.T, root, projectName, rel, content string) string {
	t.Helper()

	path := filepath.Join(root, projectName, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func writeAllInputs(t *testing.T, root, projectName string) {
	t.Helper()

	writeInput(t, root, projectName, "CMakeLists.txt", "cmake_minimum_required(VERSION 3.20)\nproject(Alpha)\n")
	writeInput(t, root, projectName, "src/main.cpp", "int main() { return 0; }\n")
	writeInput(t, root, projectName, "config/game_config.json", `{"window":{"width":800}}`)
}

func TestEmptyHashConstant(t *testing.T) {
	sum := sha256.Sum256(nil)
	assert.Equal(t, hex.EncodeToString(sum[:]), EmptyHash)
}

func TestCalculator_Determinism(t *testing.T) {
	root := t.TempDir()
	writeAllInputs(t, root, "Alpha")

	calc := NewCalculator(root, testInputs, false, nil)

	fp1, err := calc.Compute("Alpha")
	require.NoError(t, err)

	fp2, err := calc.Compute("Alpha")
	require.NoError(t, err)

	assert.Equal(t, fp1.DependencyHash, fp2.DependencyHash, "Hash should be consistent")
	assert.Len(t, fp1.DependencyHash, 64)
	assert.Equal(t, "Alpha", fp1.ProjectName)
	assert.NotEqual(t, EmptyHash, fp1.DependencyHash)
}

func TestCalculator_ConcatenationOrder(t *testing.T) {
	root := t.TempDir()
	writeInput(t, root, "Alpha", "CMakeLists.txt", "AAA")
	writeInput(t, root, "Alpha", "src/main.cpp", "BBB")
	writeInput(t, root, "Alpha", "config/game_config.json", "CCC")

	calc := NewCalculator(root, testInputs, false, nil)

	fp, err := calc.Compute("Alpha")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("AAABBBCCC"))
	assert.Equal(t, hex.EncodeToString(sum[:]), fp.DependencyHash)
}

func TestCalculator_Sensitivity(t *testing.T) {
	for _, input := range testInputs {
		t.Run(input, func(t *testing.T) {
			root := t.TempDir()
			writeAllInputs(t, root, "Alpha")

			calc := NewCalculator(root, testInputs, false, nil)

			before, err := calc.Compute("Alpha")
			require.NoError(t, err)

			path := filepath.Join(root, "Alpha", filepath.FromSlash(input))
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			require.NoError(t, err)
			_, err = f.Write([]byte{' '})
			require.NoError(t, err)
			require.NoError(t, f.Close())

			after, err := calc.Compute("Alpha")
			require.NoError(t, err)

			assert.NotEqual(t, before.DependencyHash, after.DependencyHash,
				"appending a byte to %s should change the hash", input)
		})
	}
}

func TestCalculator_MissingInputsContributeNothing(t *testing.T) {
	root := t.TempDir()
	writeInput(t, root, "Alpha", "src/main.cpp", "BBB")

	calc := NewCalculator(root, testInputs, false, nil)

	fp, err := calc.Compute("Alpha")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("BBB"))
	assert.Equal(t, hex.EncodeToString(sum[:]), fp.DependencyHash)
}

func TestCalculator_SentinelForEmptyProject(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Alpha"), 0o755))

	calc := NewCalculator(root, testInputs, false, nil)

	first, err := calc.Compute("Alpha")
	require.NoError(t, err)

	second, err := calc.Compute("Alpha")
	require.NoError(t, err)

	// A project directory that does not exist yet reads no content either
	other, err := calc.Compute("Beta")
	require.NoError(t, err)

	assert.Equal(t, EmptyHash, first.DependencyHash)
	assert.Equal(t, EmptyHash, second.DependencyHash)
	assert.Equal(t, EmptyHash, other.DependencyHash)
}

func TestCalculator_ReadErrorPolicy(t *testing.T) {
	root := t.TempDir()
	writeInput(t, root, "Alpha", "CMakeLists.txt", "project(Alpha)")

	// A directory where a file is expected cannot be hashed on any platform
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Alpha", "src", "main.cpp"), 0o755))

	t.Run("compute returns typed error", func(t *testing.T) {
		calc := NewCalculator(root, testInputs, false, nil)

		_, err := calc.Compute("Alpha")
		require.Error(t, err)

		var hashErr *HashError
		require.ErrorAs(t, err, &hashErr)
		assert.Equal(t, "src/main.cpp", hashErr.Path)
		assert.Equal(t, "Alpha", hashErr.Project)
	})

	t.Run("lenient falls back to empty hash", func(t *testing.T) {
		calc := NewCalculator(root, testInputs, false, nil)

		fp, err := calc.Fingerprint("Alpha")
		require.NoError(t, err)
		assert.Equal(t, EmptyHash, fp.DependencyHash)
		assert.True(t, fp.Degraded)
	})

	t.Run("strict propagates", func(t *testing.T) {
		calc := NewCalculator(root, testInputs, true, nil)

		_, err := calc.Fingerprint("Alpha")
		var hashErr *HashError
		assert.ErrorAs(t, err, &hashErr)
	})
}

func TestCalculator_PermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	root := t.TempDir()
	path := writeInput(t, root, "Alpha", "src/main.cpp", "int main() {}")
	require.NoError(t, os.Chmod(path, 0o000))
	t.Cleanup(func() { _ = os.Chmod(path, 0o644) })

	calc := NewCalculator(root, testInputs, false, nil)

	_, err := calc.Compute("Alpha")
	var hashErr *HashError
	require.ErrorAs(t, err, &hashErr)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestCalculator_RejectsInvalidProjectName(t *testing.T) {
	calc := NewCalculator(t.TempDir(), testInputs, false, nil)

	_, err := calc.Compute("../escape")
	assert.Error(t, err)

	_, err = calc.Fingerprint("../escape")
	assert.Error(t, err, "invalid names are never masked by the empty hash")
}

func TestCalculator_InputDigests(t *testing.T) {
	root := t.TempDir()
	writeInput(t, root, "Alpha", "CMakeLists.txt", "AAA")

	calc := NewCalculator(root, testInputs, false, nil)

	digests, err := calc.InputDigests("Alpha")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("AAA"))
	assert.Equal(t, hex.EncodeToString(sum[:]), digests["CMakeLists.txt"])
	assert.Equal(t, MissingDigest, digests["src/main.cpp"])
	assert.Equal(t, MissingDigest, digests["config/game_config.json"])
}

func TestCalculator_InputDigestsUnreadable(t *testing.T) {
	root := t.TempDir()
	writeInput(t, root, "Alpha", "CMakeLists.txt", "AAA")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Alpha", "src", "main.cpp"), 0o755))

	calc := NewCalculator(root, testInputs, false, nil)

	_, err := calc.InputDigests("Alpha")
	var hashErr *HashError
	require.ErrorAs(t, err, &hashErr)
	assert.Equal(t, "src/main.cpp", hashErr.Path)
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	got, err := HashFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, EmptyHash, got)

	sum := sha256.Sum256([]byte("content"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
