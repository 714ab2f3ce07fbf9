package milestone

import (
	"context"

	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// Repository is the read-side contract for milestone records. Writes go
// through the streak repository's transactional Mutate so a record and its
// reward are decided together.
type Repository interface {
	// List returns all milestone records for a user, newest first.
	List(ctx context.Context, userID shared.UserID) ([]Record, error)

	// Exists reports whether the (user, type, value) record is present.
	Exists(ctx context.Context, userID shared.UserID, t Type, value int) (bool, error)
}
