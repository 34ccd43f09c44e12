package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/mmynk/streamshare/internal/models"
)

// sweepPredicate matches rows the overdue sweep should transition. Both
// cutoffs are inclusive.
const sweepPredicate = `(access_data_status = ? AND access_data_sent_at IS NOT NULL AND access_data_sent_at <= ?)
	OR (access_data_status = ? AND created_at <= ?)`

// FindSweepCandidates returns rows the sweep should mark plus rows that are
// already OVERDUE.
func (q *queries) FindSweepCandidates(ctx context.Context, sentBefore, createdBefore time.Time) ([]*models.Membership, error) {
	return q.scanMemberships(ctx,
		"SELECT "+membershipColumns+" FROM memberships WHERE "+sweepPredicate+
			" OR access_data_status = ? ORDER BY created_at, join_seq, id",
		string(models.AccessSent), toUnix(sentBefore),
		string(models.AccessPending), toUnix(createdBefore),
		string(models.AccessOverdue),
	)
}

// MarkOverdue transitions every matching SENT/PENDING row in one statement.
// The predicate is re-evaluated by the database, so a row re-sent after it
// was selected is left alone, and two overlapping sweeps cannot both write
// the same row.
func (q *queries) MarkOverdue(ctx context.Context, sentBefore, createdBefore, now time.Time) ([]string, error) {
	rows, err := q.query(ctx,
		"UPDATE memberships SET access_data_status = ?, updated_at = ?, version = version + 1 WHERE "+
			sweepPredicate+" RETURNING id",
		string(models.AccessOverdue), toUnix(now),
		string(models.AccessSent), toUnix(sentBefore),
		string(models.AccessPending), toUnix(createdBefore),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark memberships overdue: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan marked membership: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate marked memberships: %w", err)
	}
	return ids, nil
}
