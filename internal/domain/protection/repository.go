package protection

import (
	"context"
	"time"

	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// Repository is the read-side contract for the protection audit log.
// Appends happen inside the streak repository's transactional Mutate so an
// inventory change and its audit entry are never split.
type Repository interface {
	// History returns the user's audit entries, newest first, up to limit.
	History(ctx context.Context, userID shared.UserID, limit int) ([]Transaction, error)

	// LastOfKind returns the newest entry of the kind for the user.
	// Returns shared.ErrNotFound when no such entry exists.
	LastOfKind(ctx context.Context, userID shared.UserID, kind Kind) (Transaction, error)

	// CountSince counts entries of the kind created at or after the cutoff.
	CountSince(ctx context.Context, userID shared.UserID, kind Kind, cutoff time.Time) (int, error)
}
