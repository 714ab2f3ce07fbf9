package postgres

import (
	"context"

	"github.com/quizhub/streak-engine/internal/domain/milestone"
	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MILESTONE REPOSITORY (read side)
// ══════════════════════════════════════════════════════════════════════════════

// MilestoneRepository is the PostgreSQL implementation of milestone.Repository.
type MilestoneRepository struct {
	conn *Connection
}

// NewMilestoneRepository creates a new MilestoneRepository.
func NewMilestoneRepository(conn *Connection) *MilestoneRepository {
	return &MilestoneRepository{conn: conn}
}

// List implements milestone.Repository.
func (r *MilestoneRepository) List(ctx context.Context, userID shared.UserID) ([]milestone.Record, error) {
	query := `
		SELECT user_id, milestone_type, value, achieved_at, reward_descriptor
		FROM streak_milestones
		WHERE user_id = $1
		ORDER BY achieved_at DESC, value DESC`

	rows, err := r.conn.Pool().Query(ctx, query, userID.Int64())
	if err != nil {
		return nil, storageErr("List", err)
	}
	defer rows.Close()

	var records []milestone.Record
	for rows.Next() {
		var (
			rec    milestone.Record
			rawID  int64
			rawTyp string
		)
		if err := rows.Scan(&rawID, &rawTyp, &rec.Value, &rec.AchievedAt, &rec.RewardDescriptor); err != nil {
			return nil, storageErr("List", err)
		}
		rec.UserID = shared.UserID(rawID)
		rec.Type = milestone.Type(rawTyp)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Exists implements milestone.Repository.
func (r *MilestoneRepository) Exists(ctx context.Context, userID shared.UserID, t milestone.Type, value int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM streak_milestones
			WHERE user_id = $1 AND milestone_type = $2 AND value = $3
		)`

	var exists bool
	if err := r.conn.Pool().QueryRow(ctx, query, userID.Int64(), t.String(), value).Scan(&exists); err != nil {
		return false, storageErr("Exists", err)
	}
	return exists, nil
}

var _ milestone.Repository = (*MilestoneRepository)(nil)
