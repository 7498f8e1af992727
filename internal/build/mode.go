package build

import (
	"github.com/Norgate-AV/gebc/internal/cache"
)

// Mode is how a project gets built
type Mode string

const (
	// ModeFull reconfigures, fetches dependencies and compiles from scratch
	ModeFull Mode = "FULL"
	// ModeFast regenerates source and config files without compiling
	ModeFast Mode = "FAST"
	// ModeIncremental reuses the build tree and recompiles changed sources
	ModeIncremental Mode = "INCREMENTAL"
)

// Reasons attached to a decision
const (
	ReasonForceFull       = "force-full"
	ReasonNoCache         = "no-cache"
	ReasonHashMismatch    = "hash-mismatch"
	ReasonHashError       = "hash-error"
	ReasonArtifactPresent = "artifact-present"
	ReasonArtifactMissing = "artifact-missing"
)

// Engine commands per mode
var modeCommands = map[Mode]string{
	ModeFull:        "project.build",
	ModeFast:        "project.build.fast",
	ModeIncremental: "project.build.incremental",
}

// Command returns the engine command that performs the mode
func (m Mode) Command() string {
	return modeCommands[m]
}

// Decision is the selected mode and why it was chosen
type Decision struct {
	Mode            Mode
	Reason          string
	Verdict         cache.Verdict
	ArtifactPresent bool
}

// Select applies the build mode policy. Rules are checked in order and the
// first match wins:
//
//	force-full requested             FULL
//	no committed cache               FULL
//	cache invalid (or unhashable)    FULL
//	cache valid, artifact on disk    INCREMENTAL
//	cache valid, no artifact         FAST
func Select(verdict cache.Verdict, artifactPresent, forceFull bool) Decision {
	d := Decision{Verdict: verdict, ArtifactPresent: artifactPresent}

	switch {
	case forceFull:
		d.Mode, d.Reason = ModeFull, ReasonForceFull
	case verdict.State == cache.StateAbsent:
		d.Mode, d.Reason = ModeFull, ReasonNoCache
	case verdict.State != cache.StateValid && verdict.HashErr != nil:
		d.Mode, d.Reason = ModeFull, ReasonHashError
	case verdict.State != cache.StateValid:
		d.Mode, d.Reason = ModeFull, ReasonHashMismatch
	case artifactPresent:
		d.Mode, d.Reason = ModeIncremental, ReasonArtifactPresent
	default:
		d.Mode, d.Reason = ModeFast, ReasonArtifactMissing
	}

	return d
}
