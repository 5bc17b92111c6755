package store

import (
	"context"
	"database/sql"
	"errors"
)

const selectUser = `
	SELECT id, username, email, first_name, last_name, password_hash, COALESCE(location, ''), created_at
	FROM users`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName, &user.PasswordHash, &user.Location, &user.CreatedAt)
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (int64, error) {
	var location any
	if user.Location != "" {
		location = user.Location
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, first_name, last_name, password_hash, location)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, user.Username, user.Email, user.FirstName, user.LastName, user.PasswordHash, location).Scan(&id)
	if err != nil {
		if dup, ok := duplicateUserErr(err); ok {
			return 0, dup
		}
		return 0, storageErr("insert user", err)
	}
	return id, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, storageErr("get user", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE username = $1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, storageErr("get user by username", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, storageErr("get user by email", err)
	}
	return user, nil
}

// RenameUser changes a username. Content is attributed by id, so existing
// questions, answers and prayer requests follow the new name.
func (s *PostgresStore) RenameUser(ctx context.Context, id int64, username string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET username = $2, updated_at = NOW() WHERE id = $1
	`, id, username)
	if err != nil {
		if dup, ok := duplicateUserErr(err); ok {
			return dup
		}
		return storageErr("rename user", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("rename user rows", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}
