package cache

import (
	"time"
)

// Fingerprint is a content hash of a project's build inputs
type Fingerprint struct {
	ProjectName string

	// DependencyHash is the hex SHA-256 over the concatenated inputs
	DependencyHash string

	// ComputedAt is informational and never compared
	ComputedAt time.Time

	// Degraded is set when an unreadable input was replaced by EmptyHash.
	// A degraded fingerprint is never committed or treated as matching.
	Degraded bool
}

// Manifest lists the dependencies a project declares. Diagnostic only.
type Manifest struct {
	ProjectName  string
	Dependencies []string
	GeneratedAt  time.Time
}

// Record is the persisted cache state of one project
type Record struct {
	Fingerprint   Fingerprint
	Manifest      Manifest
	LastBuildTime time.Time
}

// hashFile is the on-disk form of build_hash.json
type hashFile struct {
	DepsHash     string  `json:"deps_hash"`
	ProjectName  string  `json:"project_name"`
	CacheUpdated float64 `json:"cache_updated"`
}

// manifestFile is the on-disk form of deps_manifest.json
type manifestFile struct {
	ProjectName  string   `json:"project_name"`
	Dependencies []string `json:"dependencies"`
	GeneratedAt  float64  `json:"generated_at"`
}

// toEpoch converts t to float seconds since the Unix epoch
func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// fromEpoch converts float epoch seconds back to a time
func fromEpoch(sec float64) time.Time {
	whole := int64(sec)
	frac := int64((sec - float64(whole)) * float64(time.Second))

	return time.Unix(whole, frac)
}
