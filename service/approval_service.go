package service

import (
	"context"
	"errors"
	"fmt"

	"oxbobot/pkg/logger"
	"oxbobot/pkg/models"
	"oxbobot/storage"
)

// Actor is whoever sent the command being handled. An empty Username means
// the Telegram account has none.
type Actor struct {
	Username string
	ChatID   int64
}

// Secrets are the shared registration passwords.
type Secrets struct {
	User  string
	Admin string
}

// Requirement selects the guards checked before a command runs.
type Requirement int

const (
	NeedRegistered Requirement = 1 << iota
	NeedAdmin
	NeedApproved
)

type RequestOutcome int

const (
	// RequestCounted means a ctrl request was recorded and quota remains.
	RequestCounted RequestOutcome = iota
	// RequestBlocked means the ctrl quota ran out and the user got blocked.
	RequestBlocked
	// RequestApproved means the auto policy approved the user.
	RequestApproved
	// RequestPrompted means every admin got an approve/reject/ignore prompt.
	RequestPrompted
)

type ApprovalRequest struct {
	Outcome   RequestOutcome
	Remaining int
	Prompted  int
}

type ApprovalService interface {
	Authorize(ctx context.Context, actor Actor, req Requirement) (*models.User, error)
	Info(ctx context.Context, actor Actor) (*models.User, error)

	Register(ctx context.Context, actor Actor, password string) (*models.User, error)
	Unregister(ctx context.Context, actor Actor) error
	RequestApproval(ctx context.Context, actor Actor) (*ApprovalRequest, error)
	ToggleUpdates(ctx context.Context, actor Actor) (bool, error)

	Decide(ctx context.Context, admin Actor, username string, d Decision) error
	DecidePrompt(ctx context.Context, admin Actor, token string) (Decision, string, error)
	Block(ctx context.Context, admin Actor, username string) error
	Remove(ctx context.Context, admin Actor, username string) (bool, error)
	Users(ctx context.Context, admin Actor) ([]*models.User, error)

	Policy(ctx context.Context, admin Actor) (*models.Policy, error)
	SetPolicy(ctx context.Context, admin Actor, forAdmin bool, value string) error
	SetMaxRequests(ctx context.Context, admin Actor, forAdmin bool, n int) error

	Notify(ctx context.Context, actor Actor, text string) (int, error)
	Announce(ctx context.Context, admin Actor, text string) (int, error)
	Broadcast(ctx context.Context, text, excluding string, toAll bool) (int, error)
}

type approvalService struct {
	users    storage.IUserStorage
	policy   storage.IPolicyStorage
	notifier Notifier
	secrets  Secrets
	log      logger.ILogger
}

func NewApprovalService(stg storage.IStorage, notifier Notifier, secrets Secrets, log logger.ILogger) ApprovalService {
	return &approvalService{
		users:    stg.User(),
		policy:   stg.Policy(),
		notifier: notifier,
		secrets:  secrets,
		log:      log,
	}
}

// Authorize runs the guards in their fixed order: blocked, registered, admin,
// approved. It returns the actor's record, which is nil for unregistered
// actors when no registration is required.
func (s *approvalService) Authorize(ctx context.Context, actor Actor, req Requirement) (*models.User, error) {
	var user *models.User
	if actor.Username != "" {
		u, err := s.users.Get(ctx, actor.Username)
		if err != nil {
			return nil, err
		}
		user = u
	}

	if user != nil && user.Blocked {
		return nil, ErrBlocked
	}
	if req&(NeedRegistered|NeedAdmin|NeedApproved) != 0 && user == nil {
		return nil, ErrNotRegistered
	}
	if req&NeedAdmin != 0 && !user.IsAdmin {
		return nil, ErrNotAuthorized
	}
	if req&NeedApproved != 0 && !user.Approved {
		return nil, ErrNotApproved
	}
	return user, nil
}

func (s *approvalService) Info(ctx context.Context, actor Actor) (*models.User, error) {
	if actor.Username == "" {
		return nil, nil
	}
	return s.users.Get(ctx, actor.Username)
}

func (s *approvalService) Register(ctx context.Context, actor Actor, password string) (*models.User, error) {
	if actor.Username == "" {
		return nil, ErrMissingUsername
	}
	if _, err := s.Authorize(ctx, actor, 0); err != nil {
		return nil, err
	}
	exists, err := s.users.Exists(ctx, actor.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyRegistered
	}

	isAdmin := password == s.secrets.Admin
	if !isAdmin && password != s.secrets.User {
		s.log.Warning("registration with wrong password", logger.String("username", actor.Username))
		s.notifyAdmins(ctx, fmt.Sprintf(msgBadPassword, actor.Username))
		return nil, ErrBadPassword
	}

	approved := isAdmin
	if !isAdmin {
		policy, err := s.policy.Get(ctx, false)
		if err != nil {
			return nil, err
		}
		approved = policy == models.PolicyAuto
	}

	s.notifyAdmins(ctx, fmt.Sprintf(msgNewUser, actor.Username))
	if isAdmin {
		s.notifyAdmins(ctx, fmt.Sprintf(msgNewAdmin, actor.Username))
	}

	user, err := s.users.Insert(ctx, actor.Username, actor.ChatID, isAdmin, approved)
	if errors.Is(err, storage.ErrDuplicateUser) {
		return nil, ErrAlreadyRegistered
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("user registered",
		logger.String("username", user.Username),
		logger.Bool("admin", user.IsAdmin),
		logger.Bool("approved", user.Approved),
	)
	return user, nil
}

func (s *approvalService) Unregister(ctx context.Context, actor Actor) error {
	if _, err := s.Authorize(ctx, actor, 0); err != nil {
		return err
	}
	if actor.Username == "" {
		return nil
	}
	removed, err := s.users.Remove(ctx, actor.Username)
	if err != nil {
		return err
	}
	if removed {
		s.log.Info("user unregistered", logger.String("username", actor.Username))
	}
	return nil
}

func (s *approvalService) RequestApproval(ctx context.Context, actor Actor) (*ApprovalRequest, error) {
	user, err := s.Authorize(ctx, actor, NeedRegistered)
	if err != nil {
		return nil, err
	}
	if user.Approved {
		return nil, ErrAlreadyApproved
	}

	policy, err := s.policy.Get(ctx, false)
	if err != nil {
		return nil, err
	}

	switch policy {
	case models.PolicyCtrl:
		return s.countRequest(ctx, user)
	case models.PolicyAuto:
		if err := s.users.SetApproved(ctx, user.Username, true); err != nil {
			return nil, translate(err)
		}
		s.log.Info("user auto-approved", logger.String("username", user.Username))
		return &ApprovalRequest{Outcome: RequestApproved}, nil
	default:
		admins, err := s.users.Admins(ctx)
		if err != nil {
			return nil, err
		}
		text := fmt.Sprintf(msgApprovalPrompt, user.Username)
		choices := ApprovalChoices(user.Username)
		for _, admin := range admins {
			if err := s.notifier.SendChoicePrompt(admin.ChatID, text, choices); err != nil {
				s.log.Warning("failed to send approval prompt",
					logger.String("admin", admin.Username),
					logger.Error(err),
				)
			}
		}
		return &ApprovalRequest{Outcome: RequestPrompted, Prompted: len(admins)}, nil
	}
}

func (s *approvalService) countRequest(ctx context.Context, user *models.User) (*ApprovalRequest, error) {
	count, err := s.users.IncrementRequests(ctx, user.Username)
	if err != nil {
		return nil, translate(err)
	}
	quota, err := s.policy.MaxRequests(ctx, false)
	if err != nil {
		return nil, err
	}

	res := &ApprovalRequest{Outcome: RequestCounted, Remaining: quota - count}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if count < quota {
		return res, nil
	}

	// An admin may have switched policy while the counter was updated.
	policy, err := s.policy.Get(ctx, false)
	if err != nil {
		return nil, err
	}
	if policy != models.PolicyCtrl {
		return res, nil
	}
	if err := s.users.SetBlocked(ctx, user.Username, true); err != nil {
		return nil, translate(err)
	}
	s.log.Info("user blocked for too many requests",
		logger.String("username", user.Username),
		logger.Int("requests", count),
	)
	res.Outcome = RequestBlocked
	return res, nil
}

func (s *approvalService) ToggleUpdates(ctx context.Context, actor Actor) (bool, error) {
	if _, err := s.Authorize(ctx, actor, NeedRegistered); err != nil {
		return false, err
	}
	on, err := s.users.ToggleUpdates(ctx, actor.Username)
	return on, translate(err)
}

func (s *approvalService) Decide(ctx context.Context, admin Actor, username string, d Decision) error {
	if !d.valid() {
		return ErrBadToken
	}
	if _, err := s.Authorize(ctx, admin, NeedAdmin); err != nil {
		return err
	}
	return s.decide(ctx, admin, username, d, false)
}

// DecidePrompt applies an answer to an approval prompt. Only the first answer
// for a still pending user takes effect.
func (s *approvalService) DecidePrompt(ctx context.Context, admin Actor, token string) (Decision, string, error) {
	d, username, err := ParseToken(token)
	if err != nil {
		return "", "", err
	}
	if _, err := s.Authorize(ctx, admin, NeedAdmin); err != nil {
		return d, username, err
	}
	return d, username, s.decide(ctx, admin, username, d, true)
}

func (s *approvalService) decide(ctx context.Context, admin Actor, username string, d Decision, once bool) error {
	if d == DecisionIgnore {
		s.log.Info("approval request ignored", logger.String("admin", admin.Username), logger.String("username", username))
		return nil
	}

	target, err := s.users.Get(ctx, username)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrUnknownUser
	}

	approve := d == DecisionApprove
	if once {
		applied, err := s.users.ResolvePending(ctx, username, approve)
		if err != nil {
			return translate(err)
		}
		if !applied {
			return ErrAlreadyDecided
		}
	} else if approve {
		if err := s.users.SetApproved(ctx, username, true); err != nil {
			return translate(err)
		}
		if target.Blocked {
			if err := s.users.SetBlocked(ctx, username, false); err != nil {
				return translate(err)
			}
		}
	} else {
		if err := s.users.SetBlocked(ctx, username, true); err != nil {
			return translate(err)
		}
	}

	msg := msgBlockedBy
	if approve {
		msg = msgApprovedBy
	}
	s.send(target.ChatID, fmt.Sprintf(msg, admin.Username))
	s.log.Info("approval decided",
		logger.String("admin", admin.Username),
		logger.String("username", username),
		logger.String("decision", string(d)),
	)
	return nil
}

func (s *approvalService) Block(ctx context.Context, admin Actor, username string) error {
	if _, err := s.Authorize(ctx, admin, NeedAdmin); err != nil {
		return err
	}
	if err := s.users.SetBlocked(ctx, username, true); err != nil {
		return translate(err)
	}
	s.log.Info("user blocked", logger.String("admin", admin.Username), logger.String("username", username))
	return nil
}

func (s *approvalService) Remove(ctx context.Context, admin Actor, username string) (bool, error) {
	if _, err := s.Authorize(ctx, admin, NeedAdmin); err != nil {
		return false, err
	}
	removed, err := s.users.Remove(ctx, username)
	if err != nil {
		return false, err
	}
	if removed {
		s.log.Info("user removed", logger.String("admin", admin.Username), logger.String("username", username))
	}
	return removed, nil
}

func (s *approvalService) Users(ctx context.Context, admin Actor) ([]*models.User, error) {
	if _, err := s.Authorize(ctx, admin, NeedAdmin); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}

func (s *approvalService) Policy(ctx context.Context, admin Actor) (*models.Policy, error) {
	if _, err := s.Authorize(ctx, admin, NeedAdmin); err != nil {
		return nil, err
	}
	return s.policy.Snapshot(ctx)
}

func (s *approvalService) SetPolicy(ctx context.Context, admin Actor, forAdmin bool, value string) error {
	if _, err := s.Authorize(ctx, admin, NeedAdmin); err != nil {
		return err
	}
	ok, err := s.policy.Set(ctx, forAdmin, models.PolicyValue(value))
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidPolicyValue
	}
	s.log.Info("policy changed",
		logger.String("admin", admin.Username),
		logger.Bool("admin_policy", forAdmin),
		logger.String("value", value),
	)
	return nil
}

func (s *approvalService) SetMaxRequests(ctx context.Context, admin Actor, forAdmin bool, n int) error {
	if _, err := s.Authorize(ctx, admin, NeedAdmin); err != nil {
		return err
	}
	ok, err := s.policy.SetMaxRequests(ctx, forAdmin, n)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidQuota
	}
	s.log.Info("max requests changed",
		logger.String("admin", admin.Username),
		logger.Bool("admin_policy", forAdmin),
		logger.Int("value", n),
	)
	return nil
}

func (s *approvalService) Notify(ctx context.Context, actor Actor, text string) (int, error) {
	if _, err := s.Authorize(ctx, actor, NeedRegistered|NeedApproved); err != nil {
		return 0, err
	}
	return s.Broadcast(ctx, fmt.Sprintf(msgUserMessage, actor.Username, text), actor.Username, false)
}

func (s *approvalService) Announce(ctx context.Context, admin Actor, text string) (int, error) {
	if _, err := s.Authorize(ctx, admin, NeedAdmin); err != nil {
		return 0, err
	}
	return s.Broadcast(ctx, fmt.Sprintf(msgAnnouncement, admin.Username, text), admin.Username, true)
}

// Broadcast sends text to every user when toAll is set. Otherwise it only
// reaches users with updates on, except excluding; approval and block flags
// are not consulted.
func (s *approvalService) Broadcast(ctx context.Context, text, excluding string, toAll bool) (int, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, u := range users {
		if !toAll && (!u.ReceivesUpdates || u.Username == excluding) {
			continue
		}
		if s.send(u.ChatID, text) {
			sent++
		}
	}
	return sent, nil
}

func (s *approvalService) notifyAdmins(ctx context.Context, text string) {
	admins, err := s.users.Admins(ctx)
	if err != nil {
		s.log.Error("failed to list admins", logger.Error(err))
		return
	}
	for _, admin := range admins {
		s.send(admin.ChatID, text)
	}
}

func (s *approvalService) send(chatID int64, text string) bool {
	if err := s.notifier.SendText(chatID, text); err != nil {
		s.log.Warning("failed to deliver notification", logger.Int64("chat_id", chatID), logger.Error(err))
		return false
	}
	return true
}

func translate(err error) error {
	if errors.Is(err, storage.ErrUnknownUser) {
		return ErrUnknownUser
	}
	return err
}
