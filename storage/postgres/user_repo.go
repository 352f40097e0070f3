package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"oxbobot/pkg/logger"
	"oxbobot/pkg/models"
	"oxbobot/storage"
)

const uniqueViolation = "23505"

const userColumns = `id, username, chat_id, is_admin, approved, blocked, receives_updates, pending_request_count`

type userRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewUserRepo(db *pgxpool.Pool, log logger.ILogger) storage.IUserStorage {
	return &userRepo{db: db, log: log}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.ChatID, &u.IsAdmin, &u.Approved, &u.Blocked, &u.ReceivesUpdates, &u.PendingRequests)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE username=$1)", username).Scan(&exists)
	return exists, err
}

func (r *userRepo) Insert(ctx context.Context, username string, chatID int64, isAdmin, approved bool) (*models.User, error) {
	query := `
		INSERT INTO users (username, chat_id, is_admin, approved)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRow(ctx, query, username, chatID, isAdmin, approved))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, storage.ErrDuplicateUser
		}
		r.log.Error("failed to insert user", logger.String("username", username), logger.Error(err))
		return nil, err
	}
	return user, nil
}

func (r *userRepo) Remove(ctx context.Context, username string) (bool, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM users WHERE username=$1", username)
	if err != nil {
		r.log.Error("failed to remove user", logger.String("username", username), logger.Error(err))
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *userRepo) Get(ctx context.Context, username string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE username=$1", username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	return r.query(ctx, "SELECT "+userColumns+" FROM users WHERE is_admin ORDER BY id")
}

func (r *userRepo) query(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
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
	return r.update(ctx, "UPDATE users SET approved=$1 WHERE username=$2", approved, username)
}

func (r *userRepo) SetBlocked(ctx context.Context, username string, blocked bool) error {
	return r.update(ctx, "UPDATE users SET blocked=$1 WHERE username=$2", blocked, username)
}

func (r *userRepo) update(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to update user", logger.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUnknownUser
	}
	return nil
}

func (r *userRepo) ToggleUpdates(ctx context.Context, username string) (bool, error) {
	var updates bool
	err := r.db.QueryRow(ctx,
		"UPDATE users SET receives_updates = NOT receives_updates WHERE username=$1 RETURNING receives_updates",
		username,
	).Scan(&updates)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, storage.ErrUnknownUser
	}
	return updates, err
}

func (r *userRepo) IncrementRequests(ctx context.Context, username string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		"UPDATE users SET pending_request_count = pending_request_count + 1 WHERE username=$1 RETURNING pending_request_count",
		username,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, storage.ErrUnknownUser
	}
	return count, err
}

func (r *userRepo) ResolvePending(ctx context.Context, username string, approve bool) (bool, error) {
	query := "UPDATE users SET blocked=TRUE WHERE username=$1 AND NOT approved AND NOT blocked"
	if approve {
		query = "UPDATE users SET approved=TRUE WHERE username=$1 AND NOT approved AND NOT blocked"
	}
	tag, err := r.db.Exec(ctx, query, username)
	if err != nil {
		r.log.Error("failed to resolve pending user", logger.String("username", username), logger.Error(err))
		return false, err
	}
	if tag.RowsAffected() > 0 {
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
