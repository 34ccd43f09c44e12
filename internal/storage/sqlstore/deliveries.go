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

const deliveryColumns = "id, membership_id, delivery_type, content, is_invite_link, sent_at, confirmed_at, notes"

func scanDelivery(row rowScanner) (*models.AccessDataDelivery, error) {
	d := &models.AccessDataDelivery{}
	var (
		deliveryType string
		sentAt       int64
		confirmedAt  sql.NullInt64
		notes        sql.NullString
	)
	if err := row.Scan(&d.ID, &d.MembershipID, &deliveryType, &d.Content, &d.IsInviteLink,
		&sentAt, &confirmedAt, &notes); err != nil {
		return nil, err
	}
	t, err := models.ParseDeliveryType(deliveryType)
	if err != nil {
		return nil, fmt.Errorf("delivery %s: %w", d.ID, err)
	}
	d.DeliveryType = t
	d.SentAt = fromUnix(sentAt)
	d.ConfirmedAt = fromNullUnix(confirmedAt)
	if notes.Valid {
		d.Notes = notes.String
	}
	return d, nil
}

// CreateDelivery appends a delivery record. Deliveries carry a per-membership
// sequence number so "most recent" is well defined even when two deliveries
// share a timestamp.
func (q *queries) CreateDelivery(ctx context.Context, d *models.AccessDataDelivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.SentAt.IsZero() {
		d.SentAt = time.Now().UTC()
	}

	var seq int64
	if err := q.queryRow(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM access_data_deliveries WHERE membership_id = ?",
		d.MembershipID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("failed to allocate delivery sequence: %w", err)
	}

	_, err := q.exec(ctx,
		"INSERT INTO access_data_deliveries ("+deliveryColumns+", seq) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		d.ID, d.MembershipID, string(d.DeliveryType), d.Content, d.IsInviteLink,
		toUnix(d.SentAt), nullUnix(d.ConfirmedAt), nullString(d.Notes), seq,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery: %w", err)
	}
	return nil
}

// MostRecentDelivery returns the latest delivery for a membership.
func (q *queries) MostRecentDelivery(ctx context.Context, membershipID string) (*models.AccessDataDelivery, error) {
	d, err := scanDelivery(q.queryRow(ctx,
		"SELECT "+deliveryColumns+" FROM access_data_deliveries WHERE membership_id = ? ORDER BY seq DESC LIMIT 1",
		membershipID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: delivery for membership %s", storage.ErrNotFound, membershipID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get most recent delivery: %w", err)
	}
	return d, nil
}

// ListDeliveries returns a membership's deliveries, newest first.
func (q *queries) ListDeliveries(ctx context.Context, membershipID string) ([]*models.AccessDataDelivery, error) {
	rows, err := q.query(ctx,
		"SELECT "+deliveryColumns+" FROM access_data_deliveries WHERE membership_id = ? ORDER BY seq DESC",
		membershipID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*models.AccessDataDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deliveries: %w", err)
	}
	return deliveries, nil
}

// UpdateDelivery writes the confirmation timestamp and notes.
func (q *queries) UpdateDelivery(ctx context.Context, d *models.AccessDataDelivery) error {
	res, err := q.exec(ctx,
		"UPDATE access_data_deliveries SET confirmed_at = ?, notes = ? WHERE id = ?",
		nullUnix(d.ConfirmedAt), nullString(d.Notes), d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	return affected(res, "delivery", d.ID)
}
