package build

import (
	"context"

	"github.com/Norgate-AV/gebc/internal/cache"
	"github.com/Norgate-AV/gebc/internal/project"
)

// Selector gathers cache validity and artifact presence for Select
type Selector struct {
	Oracle     *cache.Oracle
	OutputRoot string
	BuildDir   string
}

// NewSelector creates a selector over the oracle's store
func NewSelector(oracle *cache.Oracle, buildDir string) *Selector {
	return &Selector{
		Oracle:     oracle,
		OutputRoot: oracle.Store.OutputRoot,
		BuildDir:   buildDir,
	}
}

// SelectMode decides how the project would be built right now
func (s *Selector) SelectMode(ctx context.Context, projectName string, forceFull bool) (Decision, error) {
	if err := project.ValidateName(projectName); err != nil {
		return Decision{}, err
	}

	verdict, err := s.Oracle.Check(ctx, projectName)
	if err != nil {
		return Decision{}, err
	}

	return Select(verdict, s.artifactPresent(projectName), forceFull), nil
}

// selectLocked decides under a cache session the caller already holds
func (s *Selector) selectLocked(session *cache.Session, forceFull bool) Decision {
	verdict := s.Oracle.CheckSession(session)
	return Select(verdict, s.artifactPresent(session.Project()), forceFull)
}

func (s *Selector) artifactPresent(projectName string) bool {
	return project.ArtifactPresent(s.OutputRoot, projectName, s.BuildDir)
}
