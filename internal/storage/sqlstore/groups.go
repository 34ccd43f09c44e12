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

const groupColumns = "id, name, description, max_members, created_by, created_at"

// CreateGroup persists a new group to the database.
func (q *queries) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	_, err := q.exec(ctx,
		"INSERT INTO share_groups ("+groupColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		group.ID, group.Name, group.Description, group.MaxMembers, group.CreatedBy, toUnix(group.CreatedAt),
	)
	if err != nil {
		if q.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%w: group %s", storage.ErrDuplicate, group.ID)
		}
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (q *queries) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return q.getGroup(ctx, groupID, "")
}

// LockGroup retrieves a group, holding a row lock when the dialect has one.
func (q *queries) LockGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return q.getGroup(ctx, groupID, q.lockClause())
}

func (q *queries) getGroup(ctx context.Context, groupID, lock string) (*models.Group, error) {
	group := &models.Group{}
	var createdAt int64
	err := q.queryRow(ctx,
		"SELECT "+groupColumns+" FROM share_groups WHERE id = ?"+lock,
		groupID,
	).Scan(&group.ID, &group.Name, &group.Description, &group.MaxMembers, &group.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	group.CreatedAt = fromUnix(createdAt)
	return group, nil
}

// UpdateGroup writes name, description and capacity.
func (q *queries) UpdateGroup(ctx context.Context, group *models.Group) error {
	res, err := q.exec(ctx,
		"UPDATE share_groups SET name = ?, description = ?, max_members = ? WHERE id = ?",
		group.Name, group.Description, group.MaxMembers, group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	return affected(res, "group", group.ID)
}

// DeleteGroup removes the group and everything hanging off it. Rows are
// deleted explicitly, children first, so the result does not depend on the
// backend enforcing foreign-key cascades.
func (q *queries) DeleteGroup(ctx context.Context, groupID string) error {
	steps := []struct {
		what  string
		query string
	}{
		{"deliveries", "DELETE FROM access_data_deliveries WHERE membership_id IN (SELECT id FROM memberships WHERE group_id = ?)"},
		{"streaming associations", "DELETE FROM group_streamings WHERE group_id = ?"},
		{"memberships", "DELETE FROM memberships WHERE group_id = ?"},
		{"join requests", "DELETE FROM join_requests WHERE group_id = ?"},
	}
	for _, step := range steps {
		if _, err := q.exec(ctx, step.query, groupID); err != nil {
			return fmt.Errorf("failed to delete group %s: %w", step.what, err)
		}
	}

	res, err := q.exec(ctx, "DELETE FROM share_groups WHERE id = ?", groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return affected(res, "group", groupID)
}

// CountMembers returns the number of memberships in a group.
func (q *queries) CountMembers(ctx context.Context, groupID string) (int, error) {
	var n int
	if err := q.queryRow(ctx, "SELECT COUNT(*) FROM memberships WHERE group_id = ?", groupID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return n, nil
}

// CreateStreamingService persists a streaming service.
func (q *queries) CreateStreamingService(ctx context.Context, service *models.StreamingService) error {
	if service.ID == "" {
		service.ID = uuid.New().String()
	}
	_, err := q.exec(ctx,
		"INSERT INTO streaming_services (id, name, max_screens) VALUES (?, ?, ?)",
		service.ID, service.Name, service.MaxScreens,
	)
	if err != nil {
		if q.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%w: streaming service %s", storage.ErrDuplicate, service.ID)
		}
		return fmt.Errorf("failed to insert streaming service: %w", err)
	}
	return nil
}

// UpdateStreamingService writes a service's name and screen limit.
func (q *queries) UpdateStreamingService(ctx context.Context, service *models.StreamingService) error {
	res, err := q.exec(ctx,
		"UPDATE streaming_services SET name = ?, max_screens = ? WHERE id = ?",
		service.Name, service.MaxScreens, service.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update streaming service: %w", err)
	}
	return affected(res, "streaming service", service.ID)
}

// ListStreamingServices returns the services with the given IDs.
func (q *queries) ListStreamingServices(ctx context.Context, serviceIDs []string) ([]*models.StreamingService, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(serviceIDs))
	for i, id := range serviceIDs {
		args[i] = id
	}
	return q.scanServices(ctx,
		"SELECT id, name, max_screens FROM streaming_services WHERE id IN ("+placeholders(len(serviceIDs))+") ORDER BY name, id",
		args...,
	)
}

// ListGroupStreamingServices returns the services associated with a group.
func (q *queries) ListGroupStreamingServices(ctx context.Context, groupID string) ([]*models.StreamingService, error) {
	return q.scanServices(ctx,
		`SELECT s.id, s.name, s.max_screens
		 FROM streaming_services s
		 JOIN group_streamings gs ON gs.service_id = s.id
		 WHERE gs.group_id = ?
		 ORDER BY s.name, s.id`,
		groupID,
	)
}

func (q *queries) scanServices(ctx context.Context, query string, args ...any) ([]*models.StreamingService, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list streaming services: %w", err)
	}
	defer rows.Close()

	var services []*models.StreamingService
	for rows.Next() {
		s := &models.StreamingService{}
		if err := rows.Scan(&s.ID, &s.Name, &s.MaxScreens); err != nil {
			return nil, fmt.Errorf("failed to scan streaming service: %w", err)
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate streaming services: %w", err)
	}
	return services, nil
}

// SetGroupStreamingServices replaces the group's streaming associations.
func (q *queries) SetGroupStreamingServices(ctx context.Context, groupID string, serviceIDs []string) error {
	if _, err := q.exec(ctx, "DELETE FROM group_streamings WHERE group_id = ?", groupID); err != nil {
		return fmt.Errorf("failed to clear streaming associations: %w", err)
	}
	for _, id := range serviceIDs {
		if _, err := q.exec(ctx,
			"INSERT INTO group_streamings (group_id, service_id) VALUES (?, ?)",
			groupID, id,
		); err != nil {
			return fmt.Errorf("failed to insert streaming association: %w", err)
		}
	}
	return nil
}
