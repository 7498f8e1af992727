package report

import (
	"time"

	"github.com/Norgate-AV/gebc/internal/cache"
	"github.com/Norgate-AV/gebc/internal/history"
)

// CacheView is the exported state of a project's cache
type CacheView struct {
	Project       string            `json:"project" yaml:"project" toml:"project"`
	State         string            `json:"state" yaml:"state" toml:"state"`
	StoredHash    string            `json:"stored_hash,omitempty" yaml:"stored_hash,omitempty" toml:"stored_hash,omitempty"`
	CurrentHash   string            `json:"current_hash,omitempty" yaml:"current_hash,omitempty" toml:"current_hash,omitempty"`
	HashError     string            `json:"hash_error,omitempty" yaml:"hash_error,omitempty" toml:"hash_error,omitempty"`
	LastBuildTime string            `json:"last_build_time,omitempty" yaml:"last_build_time,omitempty" toml:"last_build_time,omitempty"`
	Dependencies  []string          `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
	Inputs        map[string]string `json:"inputs,omitempty" yaml:"inputs,omitempty" toml:"inputs,omitempty"`
}

// NewCacheView builds a view from a verdict and the per-input digests
func NewCacheView(projectName string, v cache.Verdict, inputs map[string]string) CacheView {
	view := CacheView{
		Project:     projectName,
		State:       v.State.String(),
		StoredHash:  v.Stored,
		CurrentHash: v.Current,
		Inputs:      inputs,
	}

	if v.HashErr != nil {
		view.HashError = v.HashErr.Error()
	}

	if v.Record != nil {
		view.LastBuildTime = formatTime(v.Record.LastBuildTime)
		view.Dependencies = v.Record.Manifest.Dependencies
	}

	return view
}

// BuildView is an exported build history entry
type BuildView struct {
	ID        string `json:"id" yaml:"id" toml:"id"`
	Project   string `json:"project" yaml:"project" toml:"project"`
	Mode      string `json:"mode" yaml:"mode" toml:"mode"`
	Reason    string `json:"reason" yaml:"reason" toml:"reason"`
	Success   bool   `json:"success" yaml:"success" toml:"success"`
	Fallback  bool   `json:"fallback,omitempty" yaml:"fallback,omitempty" toml:"fallback,omitempty"`
	StartedAt string `json:"started_at" yaml:"started_at" toml:"started_at"`
	Duration  string `json:"duration" yaml:"duration" toml:"duration"`
	Hash      string `json:"hash,omitempty" yaml:"hash,omitempty" toml:"hash,omitempty"`
	ExitCode  int    `json:"exit_code" yaml:"exit_code" toml:"exit_code"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	Output    string `json:"output,omitempty" yaml:"output,omitempty" toml:"output,omitempty"`
}

// HistoryView wraps build entries so every format has a top-level table
type HistoryView struct {
	Builds []BuildView `json:"builds" yaml:"builds" toml:"builds"`
}

// NewBuildView converts a history record
func NewBuildView(rec history.Record) BuildView {
	return BuildView{
		ID:        rec.ID,
		Project:   rec.Project,
		Mode:      rec.Mode,
		Reason:    rec.Reason,
		Success:   rec.Success,
		Fallback:  rec.Fallback,
		StartedAt: formatTime(rec.StartedAt),
		Duration:  rec.Duration.Round(time.Millisecond).String(),
		Hash:      rec.Hash,
		ExitCode:  rec.ExitCode,
		Error:     rec.Error,
		Output:    rec.Output,
	}
}

// NewHistoryView converts a list of history records
func NewHistoryView(records []history.Record) HistoryView {
	view := HistoryView{Builds: make([]BuildView, 0, len(records))}
	for _, rec := range records {
		view.Builds = append(view.Builds, NewBuildView(rec))
	}

	return view
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(time.RFC3339)
}
