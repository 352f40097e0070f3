package sqlite

import (
	"context"
	"database/sql"

	"oxbobot/pkg/logger"
	"oxbobot/pkg/models"
	"oxbobot/storage"
)

type policyRepo struct {
	db  *sql.DB
	log logger.ILogger
}

func NewPolicyRepo(db *sql.DB, log logger.ILogger) storage.IPolicyStorage {
	return &policyRepo{db: db, log: log}
}

func (r *policyRepo) EnsureDefault(ctx context.Context) error {
	def := models.DefaultPolicy()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO policy (id, user_policy, admin_policy, user_max_requests, admin_max_requests)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, string(def.UserPolicy), string(def.AdminPolicy), def.UserMaxRequests, def.AdminMaxRequests)
	if err != nil {
		r.log.Error("failed to create default policy", logger.Error(err))
	}
	return err
}

func (r *policyRepo) Snapshot(ctx context.Context) (*models.Policy, error) {
	var (
		p                       models.Policy
		userPolicy, adminPolicy string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT user_policy, admin_policy, user_max_requests, admin_max_requests FROM policy WHERE id = 1",
	).Scan(&userPolicy, &adminPolicy, &p.UserMaxRequests, &p.AdminMaxRequests)
	if err != nil {
		r.log.Error("failed to read policy", logger.Error(err))
		return nil, err
	}
	p.UserPolicy = models.PolicyValue(userPolicy)
	p.AdminPolicy = models.PolicyValue(adminPolicy)
	return &p, nil
}

func (r *policyRepo) Get(ctx context.Context, forAdmin bool) (models.PolicyValue, error) {
	p, err := r.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if forAdmin {
		return p.AdminPolicy, nil
	}
	return p.UserPolicy, nil
}

func (r *policyRepo) Set(ctx context.Context, forAdmin bool, value models.PolicyValue) (bool, error) {
	if !value.Valid() {
		return false, nil
	}
	query := "UPDATE policy SET user_policy = ? WHERE id = 1"
	if forAdmin {
		query = "UPDATE policy SET admin_policy = ? WHERE id = 1"
	}
	if _, err := r.db.ExecContext(ctx, query, string(value)); err != nil {
		r.log.Error("failed to set policy", logger.Error(err))
		return false, err
	}
	return true, nil
}

func (r *policyRepo) MaxRequests(ctx context.Context, forAdmin bool) (int, error) {
	p, err := r.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if forAdmin {
		return p.AdminMaxRequests, nil
	}
	return p.UserMaxRequests, nil
}

func (r *policyRepo) SetMaxRequests(ctx context.Context, forAdmin bool, n int) (bool, error) {
	if n < 1 {
		return false, nil
	}
	query := "UPDATE policy SET user_max_requests = ? WHERE id = 1"
	if forAdmin {
		query = "UPDATE policy SET admin_max_requests = ? WHERE id = 1"
	}
	if _, err := r.db.ExecContext(ctx, query, n); err != nil {
		r.log.Error("failed to set max requests", logger.Error(err))
		return false, err
	}
	return true, nil
}
