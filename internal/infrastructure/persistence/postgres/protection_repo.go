package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quizhub/streak-engine/internal/domain/protection"
	"github.com/quizhub/streak-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROTECTION LOG REPOSITORY (read side)
// ══════════════════════════════════════════════════════════════════════════════

// ProtectionRepository is the PostgreSQL implementation of protection.Repository.
type ProtectionRepository struct {
	conn *Connection
}

// NewProtectionRepository creates a new ProtectionRepository.
func NewProtectionRepository(conn *Connection) *ProtectionRepository {
	return &ProtectionRepository{conn: conn}
}

const protectionColumns = `id, user_id, kind, quantity, streak_value_saved, amount, reason, created_at`

// History implements protection.Repository.
func (r *ProtectionRepository) History(ctx context.Context, userID shared.UserID, limit int) ([]protection.Transaction, error) {
	query := `
		SELECT ` + protectionColumns + `
		FROM protection_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.conn.Pool().Query(ctx, query, userID.Int64(), limit)
	if err != nil {
		return nil, storageErr("History", err)
	}
	defer rows.Close()

	var entries []protection.Transaction
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, storageErr("History", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LastOfKind implements protection.Repository.
func (r *ProtectionRepository) LastOfKind(ctx context.Context, userID shared.UserID, kind protection.Kind) (protection.Transaction, error) {
	query := `
		SELECT ` + protectionColumns + `
		FROM protection_log
		WHERE user_id = $1 AND kind = $2
		ORDER BY created_at DESC
		LIMIT 1`

	entry, err := scanTransaction(r.conn.Pool().QueryRow(ctx, query, userID.Int64(), string(kind)))
	if err != nil {
		if IsNoRows(err) {
			return protection.Transaction{}, shared.ErrNotFound
		}
		return protection.Transaction{}, storageErr("LastOfKind", err)
	}
	return entry, nil
}

// CountSince implements protection.Repository.
func (r *ProtectionRepository) CountSince(ctx context.Context, userID shared.UserID, kind protection.Kind, cutoff time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM protection_log
		WHERE user_id = $1 AND kind = $2 AND created_at >= $3`

	var count int
	if err := r.conn.Pool().QueryRow(ctx, query, userID.Int64(), string(kind), cutoff).Scan(&count); err != nil {
		return 0, storageErr("CountSince", err)
	}
	return count, nil
}

func scanTransaction(row pgx.Row) (protection.Transaction, error) {
	var (
		t      protection.Transaction
		userID int64
		kind   string
		amount int
		reason string
	)
	err := row.Scan(&t.ID, &userID, &kind, &t.Quantity, &t.StreakValueSaved, &amount, &reason, &t.CreatedAt)
	if err != nil {
		return protection.Transaction{}, err
	}
	t.UserID = shared.UserID(userID)
	t.Kind = protection.Kind(kind)
	t.Amount = shared.Price(amount)
	t.Reason = protection.Reason(reason)
	return t, nil
}

var _ protection.Repository = (*ProtectionRepository)(nil)
