// Package resolver implements pluggable conflict resolution strategies.
//
// Resolvers are pure: they decide which version of an entity wins and never
// persist anything themselves. All persistence is done by the caller.
package resolver

import (
	"github.com/veridian-apps/ledgersync/internal/models"
)

// Resolver decides, for one entity, whether the local or remote version (or
// a merge) should win. Injected at orchestrator construction; swapping the
// strategy is a boot-time decision, not a runtime mutation.
type Resolver interface {
	Resolve(ctx models.ConflictContext) (models.ConflictResult, error)
}

// LastWriteWins is the default strategy: the most recently updated version
// is kept, with remote winning ties. The puller skips rows that still have
// an un-pushed outbox entry before consulting any resolver, so this strategy
// never fights the pusher.
type LastWriteWins struct{}

// NewLastWriteWins creates the default resolver.
func NewLastWriteWins() *LastWriteWins {
	return &LastWriteWins{}
}

func (r *LastWriteWins) Resolve(ctx models.ConflictContext) (models.ConflictResult, error) {
	if ctx.Local == nil {
		return models.ConflictResult{Use: models.ConflictUseRemote}, nil
	}
	if ctx.Remote.UpdatedAt.Before(ctx.Local.UpdatedAt) {
		return models.ConflictResult{Use: models.ConflictUseLocal}, nil
	}
	// Remote wins on tie.
	return models.ConflictResult{Use: models.ConflictUseRemote}, nil
}

// ManualMerge flags every genuine conflict for human review, keeping the
// local version as the safe default until a side is chosen. The chosen
// merge re-enters through the normal write path (and thus the outbox).
type ManualMerge struct{}

// NewManualMerge creates a manual-merge resolver.
func NewManualMerge() *ManualMerge {
	return &ManualMerge{}
}

func (r *ManualMerge) Resolve(ctx models.ConflictContext) (models.ConflictResult, error) {
	if ctx.Local == nil {
		// Nothing to merge; a pull-only row is not a conflict.
		return models.ConflictResult{Use: models.ConflictUseRemote}, nil
	}
	return models.ConflictResult{
		Use:               models.ConflictUseLocal,
		NeedsManualReview: true,
	}, nil
}
