package streak

import (
	"context"

	"github.com/quizhub/streak-engine/internal/domain/milestone"
	"github.com/quizhub/streak-engine/internal/domain/protection"
	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// These interfaces define the storage contract for streak ledgers.
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Mutation collects the side effects a Mutator wants applied together with
// the ledger update. The repository persists everything in one transaction:
// either the full set is durable or none of it is.
type Mutation struct {
	// NoChange skips the write entirely (idempotent re-entry branches).
	NoChange bool

	// Log entries to append to the protection audit trail.
	Log []protection.Transaction

	// Grants are milestone candidates. Each is applied exactly once: the
	// repository inserts the milestone record first and applies the reward
	// (inventory deltas, grant log rows) only when the insert wins, so a
	// concurrent duplicate crossing grants nothing twice.
	Grants []milestone.Grant

	// Events to publish after a successful commit.
	Events []shared.Event
}

// Mutator computes the new in-memory ledger state and its side effects.
// It runs inside the repository's transaction and must be side-effect free
// outside the passed ledger: a serialization retry may invoke it again
// against a fresh read.
type Mutator func(l *Ledger) (*Mutation, error)

// MutationOutcome is what a committed mutation produced.
type MutationOutcome struct {
	Ledger *Ledger

	// GrantedMilestones are the grants whose record insert won; their
	// rewards were applied in the same transaction.
	GrantedMilestones []milestone.Grant

	// Events to publish, including MilestoneAchieved for won grants.
	Events []shared.Event
}

// Repository is the storage contract for streak ledgers. Every mutation is
// a single atomic read-modify-write against one user's row; two concurrent
// calls for the same user serialize, and the second observes the first's
// effect.
type Repository interface {
	// Get returns the ledger for the user.
	// Returns shared.ErrLedgerNotFound if none exists yet.
	Get(ctx context.Context, userID shared.UserID) (*Ledger, error)

	// Mutate loads (or lazily creates) the user's ledger, runs fn against
	// it under a per-user lock, validates invariants, and persists the
	// ledger plus all side effects in one transaction.
	Mutate(ctx context.Context, userID shared.UserID, fn Mutator) (*MutationOutcome, error)

	// ListMonitored streams ledgers the State Monitor sweep cares about:
	// active streaks in a monitored risk state, and lost streaks whose
	// repair window bookkeeping may need advancing.
	ListMonitored(ctx context.Context, batchSize int, fn func(userID shared.UserID) error) error
}
