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

const joinRequestColumns = "id, group_id, user_id, status, message, response_message, responded_by, created_at, responded_at"

func scanJoinRequest(row rowScanner) (*models.JoinRequest, error) {
	r := &models.JoinRequest{}
	var (
		status                         string
		message, response, respondedBy sql.NullString
		createdAt                      int64
		respondedAt                    sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.GroupID, &r.UserID, &status, &message, &response,
		&respondedBy, &createdAt, &respondedAt); err != nil {
		return nil, err
	}
	st, err := models.ParseJoinRequestStatus(status)
	if err != nil {
		return nil, fmt.Errorf("join request %s: %w", r.ID, err)
	}
	r.Status = st
	r.Message = message.String
	r.ResponseMessage = response.String
	r.RespondedBy = respondedBy.String
	r.CreatedAt = fromUnix(createdAt)
	r.RespondedAt = fromNullUnix(respondedAt)
	return r, nil
}

// CreateJoinRequest persists a new join request.
func (q *queries) CreateJoinRequest(ctx context.Context, r *models.JoinRequest) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = models.JoinPending
	}

	_, err := q.exec(ctx,
		"INSERT INTO join_requests ("+joinRequestColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.GroupID, r.UserID, string(r.Status), nullString(r.Message), nullString(r.ResponseMessage),
		nullString(r.RespondedBy), toUnix(r.CreatedAt), nullUnix(r.RespondedAt),
	)
	if err != nil {
		if q.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%w: join request of %s for group %s", storage.ErrDuplicate, r.UserID, r.GroupID)
		}
		return fmt.Errorf("failed to insert join request: %w", err)
	}
	return nil
}

// GetJoinRequest retrieves a join request by ID.
func (q *queries) GetJoinRequest(ctx context.Context, requestID string) (*models.JoinRequest, error) {
	r, err := scanJoinRequest(q.queryRow(ctx,
		"SELECT "+joinRequestColumns+" FROM join_requests WHERE id = ?",
		requestID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: join request %s", storage.ErrNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}
	return r, nil
}

// FindJoinRequest retrieves the join request of a user for a group.
func (q *queries) FindJoinRequest(ctx context.Context, groupID, userID string) (*models.JoinRequest, error) {
	r, err := scanJoinRequest(q.queryRow(ctx,
		"SELECT "+joinRequestColumns+" FROM join_requests WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: join request of %s for group %s", storage.ErrNotFound, userID, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find join request: %w", err)
	}
	return r, nil
}

// UpdateJoinRequest writes the request's status and response fields.
func (q *queries) UpdateJoinRequest(ctx context.Context, r *models.JoinRequest) error {
	res, err := q.exec(ctx,
		`UPDATE join_requests
		 SET status = ?, message = ?, response_message = ?, responded_by = ?, created_at = ?, responded_at = ?
		 WHERE id = ?`,
		string(r.Status), nullString(r.Message), nullString(r.ResponseMessage), nullString(r.RespondedBy),
		toUnix(r.CreatedAt), nullUnix(r.RespondedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update join request: %w", err)
	}
	return affected(res, "join request", r.ID)
}

// DeletePendingJoinRequests purges PENDING requests of a user for a group.
func (q *queries) DeletePendingJoinRequests(ctx context.Context, groupID, userID string) (int64, error) {
	res, err := q.exec(ctx,
		"DELETE FROM join_requests WHERE group_id = ? AND user_id = ? AND status = ?",
		groupID, userID, string(models.JoinPending),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending join requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
