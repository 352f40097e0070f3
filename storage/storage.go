package storage

import (
	"context"
	"errors"

	"oxbobot/pkg/models"
)

var (
	ErrDuplicateUser = errors.New("user already exists")
	ErrUnknownUser   = errors.New("user not found")
)

type IStorage interface {
	User() IUserStorage
	Policy() IPolicyStorage
	Ping(ctx context.Context) error
	Close()
}

type IUserStorage interface {
	Exists(ctx context.Context, username string) (bool, error)
	Insert(ctx context.Context, username string, chatID int64, isAdmin, approved bool) (*models.User, error)
	Remove(ctx context.Context, username string) (bool, error)
	Get(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Admins(ctx context.Context) ([]*models.User, error)
	SetApproved(ctx context.Context, username string, approved bool) error
	SetBlocked(ctx context.Context, username string, blocked bool) error
	ToggleUpdates(ctx context.Context, username string) (bool, error)
	IncrementRequests(ctx context.Context, username string) (int, error)
	ResolvePending(ctx context.Context, username string, approve bool) (bool, error)
}

type IPolicyStorage interface {
	EnsureDefault(ctx context.Context) error
	Get(ctx context.Context, forAdmin bool) (models.PolicyValue, error)
	Set(ctx context.Context, forAdmin bool, value models.PolicyValue) (bool, error)
	MaxRequests(ctx context.Context, forAdmin bool) (int, error)
	SetMaxRequests(ctx context.Context, forAdmin bool, n int) (bool, error)
	Snapshot(ctx context.Context) (*models.Policy, error)
}
