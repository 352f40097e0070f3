package service

import "errors"

var (
	ErrMissingUsername    = errors.New("sender has no username")
	ErrBadPassword        = errors.New("wrong password")
	ErrAlreadyRegistered  = errors.New("user already registered")
	ErrUnknownUser        = errors.New("user not registered")
	ErrAlreadyApproved    = errors.New("user already approved")
	ErrInvalidPolicyValue = errors.New("invalid policy value")
	ErrInvalidQuota       = errors.New("max requests must be a positive integer")
	ErrNotAuthorized      = errors.New("admin rights required")
	ErrBlocked            = errors.New("user is blocked")
	ErrNotRegistered      = errors.New("sender not registered")
	ErrNotApproved        = errors.New("sender not approved")
	ErrAlreadyDecided     = errors.New("approval request already decided")
	ErrBadToken           = errors.New("malformed decision token")
)
