package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/streamshare/internal/models"
	"github.com/mmynk/streamshare/internal/storage"
)

const membershipColumns = `id, group_id, user_id, role, access_data_status, access_data_deadline,
	access_data_sent_at, access_data_confirmed_at, created_at, updated_at, version, join_seq`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (*models.Membership, error) {
	m := &models.Membership{}
	var (
		role                        string
		status                      sql.NullString
		deadline, sentAt, confirmed sql.NullInt64
		createdAt, updatedAt        int64
	)
	if err := row.Scan(&m.ID, &m.GroupID, &m.UserID, &role, &status, &deadline,
		&sentAt, &confirmed, &createdAt, &updatedAt, &m.Version, &m.JoinSeq); err != nil {
		return nil, err
	}

	r, err := models.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("membership %s: %w", m.ID, err)
	}
	st, err := models.ParseAccessDataStatus(status.String)
	if err != nil {
		return nil, fmt.Errorf("membership %s: %w", m.ID, err)
	}

	m.Role = r
	m.AccessDataStatus = st
	m.AccessDataDeadline = fromNullUnix(deadline)
	m.AccessDataSentAt = fromNullUnix(sentAt)
	m.AccessDataConfirmedAt = fromNullUnix(confirmed)
	m.CreatedAt = fromUnix(createdAt)
	m.UpdatedAt = fromUnix(updatedAt)
	return m, nil
}

func (q *queries) scanMemberships(ctx context.Context, query string, args ...any) ([]*models.Membership, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return memberships, nil
}

// GetMembership retrieves a membership by ID.
func (q *queries) GetMembership(ctx context.Context, membershipID string) (*models.Membership, error) {
	m, err := scanMembership(q.queryRow(ctx,
		"SELECT "+membershipColumns+" FROM memberships WHERE id = ?",
		membershipID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: membership %s", storage.ErrNotFound, membershipID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// FindMembership retrieves the membership of a user in a group.
func (q *queries) FindMembership(ctx context.Context, groupID, userID string) (*models.Membership, error) {
	m, err := scanMembership(q.queryRow(ctx,
		"SELECT "+membershipColumns+" FROM memberships WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: membership of %s in group %s", storage.ErrNotFound, userID, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	return m, nil
}

// FindMembershipsByGroup returns a group's memberships, oldest first.
func (q *queries) FindMembershipsByGroup(ctx context.Context, groupID string) ([]*models.Membership, error) {
	return q.scanMemberships(ctx,
		"SELECT "+membershipColumns+" FROM memberships WHERE group_id = ? ORDER BY created_at, join_seq, id",
		groupID,
	)
}

// FindMembershipsByStatus returns memberships of the given groups in any of
// the given statuses.
func (q *queries) FindMembershipsByStatus(ctx context.Context, groupIDs []string, statuses []models.AccessDataStatus) ([]*models.Membership, error) {
	if len(groupIDs) == 0 || len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(groupIDs)+len(statuses))
	for _, id := range groupIDs {
		args = append(args, id)
	}
	for _, s := range statuses {
		args = append(args, string(s))
	}
	return q.scanMemberships(ctx,
		"SELECT "+membershipColumns+" FROM memberships"+
			" WHERE group_id IN ("+placeholders(len(groupIDs))+")"+
			" AND access_data_status IN ("+placeholders(len(statuses))+")"+
			" ORDER BY created_at, join_seq, id",
		args...,
	)
}

// ListManagedGroupIDs returns the groups where the user is OWNER or ADMIN.
func (q *queries) ListManagedGroupIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := q.query(ctx,
		"SELECT group_id FROM memberships WHERE user_id = ? AND role IN (?, ?) ORDER BY group_id",
		userID, string(models.RoleOwner), string(models.RoleAdmin),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list managed groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate managed groups: %w", err)
	}
	return ids, nil
}

// CreateMembership persists a new membership. JoinSeq is assigned as one
// past the group's highest, so callers hold the group lock.
func (q *queries) CreateMembership(ctx context.Context, m *models.Membership) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	if err := q.queryRow(ctx,
		"SELECT COALESCE(MAX(join_seq), 0) + 1 FROM memberships WHERE group_id = ?",
		m.GroupID,
	).Scan(&m.JoinSeq); err != nil {
		return fmt.Errorf("failed to allocate join sequence: %w", err)
	}

	_, err := q.exec(ctx,
		"INSERT INTO memberships ("+membershipColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.GroupID, m.UserID, string(m.Role), nullString(string(m.AccessDataStatus)),
		nullUnix(m.AccessDataDeadline), nullUnix(m.AccessDataSentAt), nullUnix(m.AccessDataConfirmedAt),
		toUnix(m.CreatedAt), toUnix(m.UpdatedAt), m.Version, m.JoinSeq,
	)
	if err != nil {
		if q.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%w: membership of %s in group %s", storage.ErrDuplicate, m.UserID, m.GroupID)
		}
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// UpdateMembership writes the mutable fields under an optimistic lock.
func (q *queries) UpdateMembership(ctx context.Context, m *models.Membership) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	res, err := q.exec(ctx,
		`UPDATE memberships
		 SET role = ?, access_data_status = ?, access_data_deadline = ?, access_data_sent_at = ?,
		     access_data_confirmed_at = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		string(m.Role), nullString(string(m.AccessDataStatus)), nullUnix(m.AccessDataDeadline),
		nullUnix(m.AccessDataSentAt), nullUnix(m.AccessDataConfirmedAt), toUnix(m.UpdatedAt),
		m.ID, m.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		if _, err := q.GetMembership(ctx, m.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: membership %s at version %d", storage.ErrConflict, m.ID, m.Version)
	}
	m.Version++
	return nil
}

// DeleteMembership removes a membership and its deliveries.
func (q *queries) DeleteMembership(ctx context.Context, membershipID string) error {
	if _, err := q.exec(ctx, "DELETE FROM access_data_deliveries WHERE membership_id = ?", membershipID); err != nil {
		return fmt.Errorf("failed to delete deliveries: %w", err)
	}
	res, err := q.exec(ctx, "DELETE FROM memberships WHERE id = ?", membershipID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return affected(res, "membership", membershipID)
}
