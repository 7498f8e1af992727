package cache

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Norgate-AV/gebc/internal/project"
)

// fetchContentRe matches the dependency name in FetchContent_Declare(<name> ...)
var fetchContentRe = regexp.MustCompile(`(?i)FetchContent_Declare\s*\(\s*([A-Za-z0-9_.+-]+)`)

// BuildManifest lists the dependencies declared in the project's
// CMakeLists.txt, falling back to defaults when none are declared
func BuildManifest(outputRoot, projectName string, defaults []string, now time.Time) Manifest {
	deps := declaredDependencies(filepath.Join(project.Dir(outputRoot, projectName), "CMakeLists.txt"))
	if len(deps) == 0 {
		deps = append([]string(nil), defaults...)
	}

	return Manifest{
		ProjectName:  projectName,
		Dependencies: deps,
		GeneratedAt:  now,
	}
}

func declaredDependencies(cmakePath string) []string {
	data, err := os.ReadFile(cmakePath)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var deps []string

	for _, m := range fetchContentRe.FindAllStringSubmatch(string(data), -1) {
		name := strings.ToLower(m[1])
		if !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}

	sort.Strings(deps)

	return deps
}
