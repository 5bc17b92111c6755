package store

import (
	"context"
	"database/sql"
	"errors"
)

func (s *PostgresStore) CreatePrayerRequest(ctx context.Context, authorID int64, text string) (int64, error) {
	if authorID <= 0 {
		return 0, ErrInvalidAuthor
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO prayer_requests (author_id, text) VALUES ($1, $2) RETURNING id
	`, authorID, text).Scan(&id)
	if err != nil {
		if _, ok := pgError(err, pgForeignKeyViolation); ok {
			return 0, ErrUserNotFound
		}
		return 0, storageErr("insert prayer request", err)
	}
	return id, nil
}

func (s *PostgresStore) GetPrayerRequest(ctx context.Context, id int64) (PrayerRequest, error) {
	var item PrayerRequest
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.author_id, u.username, p.text, p.created_at
		FROM prayer_requests p
		JOIN users u ON u.id = p.author_id
		WHERE p.id = $1
	`, id).Scan(&item.ID, &item.AuthorID, &item.AuthorName, &item.Text, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PrayerRequest{}, ErrPrayerRequestNotFound
	}
	if err != nil {
		return PrayerRequest{}, storageErr("get prayer request", err)
	}
	return item, nil
}

// DeletePrayerRequest leaves read_states rows in place; they are excluded by
// the join in ListPrayerRequestsWithState.
func (s *PostgresStore) DeletePrayerRequest(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM prayer_requests WHERE id = $1`, id)
	if err != nil {
		return storageErr("delete prayer request", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("delete prayer request rows", err)
	}
	if affected == 0 {
		return ErrPrayerRequestNotFound
	}
	return nil
}

// ListPrayerRequestsWithState returns every request, newest first, with the
// viewer's seen flag. A missing read_states row reads as unseen.
func (s *PostgresStore) ListPrayerRequestsWithState(ctx context.Context, userID int64) ([]PrayerRequestState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.author_id, u.username, p.text, p.created_at, COALESCE(rs.seen, FALSE)
		FROM prayer_requests p
		JOIN users u ON u.id = p.author_id
		LEFT JOIN read_states rs ON rs.request_id = p.id AND rs.user_id = $1
		ORDER BY p.created_at DESC, p.id ASC
	`, userID)
	if err != nil {
		return nil, storageErr("list prayer requests", err)
	}
	defer rows.Close()

	items := make([]PrayerRequestState, 0)
	for rows.Next() {
		var item PrayerRequestState
		if err := rows.Scan(&item.ID, &item.AuthorID, &item.AuthorName, &item.Text, &item.CreatedAt, &item.Seen); err != nil {
			return nil, storageErr("scan prayer request", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate prayer requests", err)
	}
	return items, nil
}

// ToggleSeen flips the viewer's seen flag in a single statement and returns
// the new value. The first toggle for a pair always yields true.
func (s *PostgresStore) ToggleSeen(ctx context.Context, userID, requestID int64) (bool, error) {
	var seen bool
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO read_states (user_id, request_id, seen)
		SELECT $1, p.id, TRUE FROM prayer_requests p WHERE p.id = $2
		ON CONFLICT (user_id, request_id)
		DO UPDATE SET seen = NOT read_states.seen, updated_at = NOW()
		RETURNING seen
	`, userID, requestID).Scan(&seen)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrPrayerRequestNotFound
	}
	if err != nil {
		if _, ok := pgError(err, pgForeignKeyViolation); ok {
			return false, ErrUserNotFound
		}
		return false, storageErr("toggle seen", err)
	}
	return seen, nil
}
