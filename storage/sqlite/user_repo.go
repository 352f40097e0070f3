package sqlite

import (
	"context"
	"database/sql"
	"errors"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"oxbobot/pkg/logger"
	"oxbobot/pkg/models"
	"oxbobot/storage"
)

const userColumns = `id, username, chat_id, is_admin, approved, blocked, receives_updates, pending_request_count`

type userRepo struct {
	db  *sql.DB
	log logger.ILogger
}

func NewUserRepo(db *sql.DB, log logger.ILogger) storage.IUserStorage {
	return &userRepo{db: db, log: log}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.ChatID, &u.IsAdmin, &u.Approved, &u.Blocked, &u.ReceivesUpdates, &u.PendingRequests)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func (r *userRepo) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)", username).Scan(&exists)
	return exists, err
}

func (r *userRepo) Insert(ctx context.Context, username string, chatID int64, isAdmin, approved bool) (*models.User, error) {
	query := `
		INSERT INTO users (username, chat_id, is_admin, approved)
		VALUES (?, ?, ?, ?)
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username, chatID, isAdmin, approved))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrDuplicateUser
		}
		r.log.Error("failed to insert user", logger.String("username", username), logger.Error(err))
		return nil, err
	}
	return user, nil
}

func (r *userRepo) Remove(ctx context.Context, username string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		r.log.Error("failed to remove user", logger.String("username", username), logger.Error(err))
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *userRepo) Get(ctx context.Context, username string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to get user", logger.String("username", username), logger.Error(err))
		return nil, err
	}
	return user, nil
}

func (r *userRepo) List(ctx context.Context) ([]*models.User, error) {
	return r.query(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
}

func (r *userRepo) Admins(ctx context.Context) ([]*models.User, error) {
	return r.query(ctx, "SELECT "+userColumns+" FROM users WHERE is_admin = 1 ORDER BY id")
}

func (r *userRepo) query(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *userRepo) SetApproved(ctx context.Context, username string, approved bool) error {
	return r.update(ctx, "UPDATE users SET approved = ? WHERE username = ?", approved, username)
}

func (r *userRepo) SetBlocked(ctx context.Context, username string, blocked bool) error {
	return r.update(ctx, "UPDATE users SET blocked = ? WHERE username = ?", blocked, username)
}

func (r *userRepo) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to update user", logger.Error(err))
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrUnknownUser
	}
	return nil
}

func (r *userRepo) ToggleUpdates(ctx context.Context, username string) (bool, error) {
	var updates bool
	err := r.db.QueryRowContext(ctx,
		"UPDATE users SET receives_updates = 1 - receives_updates WHERE username = ? RETURNING receives_updates",
		username,
	).Scan(&updates)
	if errors.Is(err, sql.ErrNoRows) {
		return false, storage.ErrUnknownUser
	}
	return updates, err
}

func (r *userRepo) IncrementRequests(ctx context.Context, username string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"UPDATE users SET pending_request_count = pending_request_count + 1 WHERE username = ? RETURNING pending_request_count",
		username,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrUnknownUser
	}
	return count, err
}

func (r *userRepo) ResolvePending(ctx context.Context, username string, approve bool) (bool, error) {
	query := "UPDATE users SET blocked = 1 WHERE username = ? AND approved = 0 AND blocked = 0"
	if approve {
		query = "UPDATE users SET approved = 1 WHERE username = ? AND approved = 0 AND blocked = 0"
	}
	res, err := r.db.ExecContext(ctx, query, username)
	if err != nil {
		r.log.Error("failed to resolve pending user", logger.String("username", username), logger.Error(err))
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	exists, err := r.Exists(ctx, username)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, storage.ErrUnknownUser
	}
	return false, nil
}
