package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"oxbobot/pkg/logger"
	"oxbobot/pkg/media"
	"oxbobot/pkg/models"
	"oxbobot/service"
)

type CommandKind int

const (
	CmdStart CommandKind = iota
	CmdHelp
	CmdInfo
	CmdRegister
	CmdUnregister
	CmdRequestApproval
	CmdApprove
	CmdBlock
	CmdRemove
	CmdUsers
	CmdUpdates
	CmdNotify
	CmdAnnounce
	CmdUserPolicy
	CmdAdminPolicy
	CmdUserMaxRequests
	CmdAdminMaxRequests
	CmdImage
	CmdLogs
)

// audience decides who sees a command in /help. It does not guard the command.
type audience int

const (
	audienceHidden audience = iota
	audienceEveryone
	audienceGuest
	audienceRegistered
	audiencePending
	audienceApproved
	audienceAdmin
)

func (a audience) visibleTo(u *models.User) bool {
	switch a {
	case audienceEveryone:
		return true
	case audienceGuest:
		return u == nil
	case audienceRegistered:
		return u != nil
	case audiencePending:
		return u != nil && !u.Approved
	case audienceApproved:
		return u != nil && u.Approved
	case audienceAdmin:
		return u != nil && u.IsAdmin
	}
	return false
}

type commandSpec struct {
	kind        CommandKind
	name        string
	args        string
	description string
	audience    audience
	operations  bool
}

func (s commandSpec) usage() string {
	if s.args == "" {
		return "/" + s.name
	}
	return "/" + s.name + " " + s.args
}

var policyArgs = "[" + strings.Join(policyNames(), "|") + "]"

var commands = []commandSpec{
	{kind: CmdStart, name: "start", audience: audienceHidden},
	{kind: CmdInfo, name: "info", description: "see info about you", audience: audienceEveryone},
	{kind: CmdHelp, name: "help", description: "see all commands", audience: audienceEveryone},
	{kind: CmdRegister, name: "register", args: "[password]", description: "register your username", audience: audienceGuest},
	{kind: CmdUnregister, name: "unregister", description: "unregister yourself", audience: audienceRegistered},
	{kind: CmdUpdates, name: "updates", description: "turn on/off updates", audience: audienceRegistered},
	{kind: CmdNotify, name: "notify", args: "[message]", description: "notify all users with updates 'on'", audience: audienceRegistered},
	{kind: CmdRequestApproval, name: "ask_approval", description: "ask admins for approval", audience: audiencePending},
	{kind: CmdAnnounce, name: "announce", args: "[message]", description: "send announcement to all users", audience: audienceAdmin},
	{kind: CmdUsers, name: "users", description: "see all registered users", audience: audienceAdmin},
	{kind: CmdApprove, name: "approve", args: "[username]", description: "approve user", audience: audienceAdmin},
	{kind: CmdBlock, name: "block", args: "[username]", description: "block user", audience: audienceAdmin},
	{kind: CmdRemove, name: "remove", args: "[username]", description: "remove user from database", audience: audienceAdmin},
	{kind: CmdUserPolicy, name: "user_policy", args: policyArgs, description: "get/set policy for user approval", audience: audienceAdmin},
	{kind: CmdAdminPolicy, name: "admin_policy", args: policyArgs, description: "get/set policy for admin approval", audience: audienceAdmin},
	{kind: CmdUserMaxRequests, name: "user_max_requests", args: "[number]", description: "get/set approval requests allowed under ctrl", audience: audienceAdmin},
	{kind: CmdAdminMaxRequests, name: "admin_max_requests", args: "[number]", description: "get/set admin approval requests allowed under ctrl", audience: audienceAdmin},
	{kind: CmdImage, name: "img", args: "[0-9]", description: "see photos from camera", audience: audienceApproved, operations: true},
	{kind: CmdLogs, name: "logs", description: "see logs from server", audience: audienceApproved, operations: true},
}

func policyNames() []string {
	names := make([]string, len(models.PolicyValues))
	for i, v := range models.PolicyValues {
		names[i] = string(v)
	}
	return names
}

func specFor(kind CommandKind) commandSpec {
	for _, s := range commands {
		if s.kind == kind {
			return s
		}
	}
	return commandSpec{kind: kind}
}

// Event is an inbound command. SenderUsername is empty when the Telegram
// account has no username.
type Event struct {
	SenderUsername string
	SenderChatID   int64
	SenderLocale   string
	Kind           CommandKind
	Args           string
}

func (e Event) actor() service.Actor {
	return service.Actor{Username: e.SenderUsername, ChatID: e.SenderChatID}
}

// ChoiceEvent is an answer to an inline approval prompt.
type ChoiceEvent struct {
	SenderUsername string
	SenderChatID   int64
	Token          string
}

// Responder answers the chat an event came from.
type Responder interface {
	Reply(text string) error
	ReplyPhoto(data []byte, caption string) error
}

type Camera interface {
	Snapshot(id string) ([]byte, error)
}

type LogSource interface {
	Read() (string, error)
}

type handlerFunc func(ctx context.Context, ev Event, resp Responder) error

// Router maps command events onto approval workflow operations and renders
// their outcome as replies.
type Router struct {
	svc      service.ApprovalService
	camera   Camera
	logs     LogSource
	log      logger.ILogger
	handlers map[CommandKind]handlerFunc
}

func NewRouter(svc service.ApprovalService, camera Camera, logs LogSource, log logger.ILogger) *Router {
	r := &Router{svc: svc, camera: camera, logs: logs, log: log}
	r.handlers = map[CommandKind]handlerFunc{
		CmdStart:            r.handleStart,
		CmdHelp:             r.handleHelp,
		CmdInfo:             r.handleInfo,
		CmdRegister:         r.handleRegister,
		CmdUnregister:       r.handleUnregister,
		CmdRequestApproval:  r.handleRequestApproval,
		CmdApprove:          r.handleApprove,
		CmdBlock:            r.handleBlock,
		CmdRemove:           r.handleRemove,
		CmdUsers:            r.handleUsers,
		CmdUpdates:          r.handleUpdates,
		CmdNotify:           r.handleNotify,
		CmdAnnounce:         r.handleAnnounce,
		CmdUserPolicy:       r.policyHandler(false),
		CmdAdminPolicy:      r.policyHandler(true),
		CmdUserMaxRequests:  r.quotaHandler(false),
		CmdAdminMaxRequests: r.quotaHandler(true),
		CmdImage:            r.handleImage,
		CmdLogs:             r.handleLogs,
	}
	return r
}

func (r *Router) Dispatch(ctx context.Context, ev Event, resp Responder) error {
	h, ok := r.handlers[ev.Kind]
	if !ok {
		return r.Fallback(resp)
	}
	ev.Args = strings.TrimSpace(ev.Args)
	return h(ctx, ev, resp)
}

func (r *Router) Fallback(resp Responder) error {
	return resp.Reply(msg("fallback"))
}

func (r *Router) Choose(ctx context.Context, ev ChoiceEvent, resp Responder) error {
	admin := service.Actor{Username: ev.SenderUsername, ChatID: ev.SenderChatID}
	d, username, err := r.svc.DecidePrompt(ctx, admin, ev.Token)
	switch {
	case errors.Is(err, service.ErrAlreadyDecided):
		return resp.Reply(fmt.Sprintf(msg("decided"), username))
	case err != nil:
		return r.fail(resp, username, err)
	}

	switch d {
	case service.DecisionApprove:
		return resp.Reply(fmt.Sprintf(msg("approved"), username))
	case service.DecisionReject:
		return resp.Reply(fmt.Sprintf(msg("rejected"), username))
	default:
		return resp.Reply(msg("ignored"))
	}
}

// fail turns a workflow error into a reply. subject names the user the
// command was about, if any.
func (r *Router) fail(resp Responder, subject string, err error) error {
	var text string
	switch {
	case errors.Is(err, service.ErrBlocked):
		text = msg("blocked")
	case errors.Is(err, service.ErrNotRegistered):
		text = msg("not_registered")
	case errors.Is(err, service.ErrNotAuthorized):
		text = msg("not_admin")
	case errors.Is(err, service.ErrNotApproved):
		text = msg("not_approved")
	case errors.Is(err, service.ErrMissingUsername):
		text = msg("no_username")
	case errors.Is(err, service.ErrBadPassword):
		text = msg("bad_password")
	case errors.Is(err, service.ErrAlreadyRegistered):
		text = msg("already_reg")
	case errors.Is(err, service.ErrAlreadyApproved):
		text = msg("already_approved")
	case errors.Is(err, service.ErrUnknownUser):
		text = fmt.Sprintf(msg("unknown_user"), subject)
	case errors.Is(err, service.ErrInvalidPolicyValue):
		text = fmt.Sprintf(msg("policy_bad"), strings.Join(policyNames(), ", "))
	case errors.Is(err, service.ErrInvalidQuota):
		text = msg("quota_bad")
	case errors.Is(err, service.ErrBadToken):
		text = msg("bad_choice")
	default:
		r.log.Error("command failed", logger.String("subject", subject), logger.Error(err))
		text = msg("failure")
	}
	return resp.Reply(text)
}

func (r *Router) usage(resp Responder, kind CommandKind) error {
	s := specFor(kind)
	return resp.Reply(fmt.Sprintf(msg("usage"), s.name, s.args))
}

func (r *Router) handleStart(_ context.Context, _ Event, resp Responder) error {
	if err := resp.Reply(msg("welcome")); err != nil {
		return err
	}
	return resp.Reply(msg("welcome_hint"))
}

func (r *Router) handleHelp(ctx context.Context, ev Event, resp Responder) error {
	user, err := r.svc.Info(ctx, ev.actor())
	if err != nil {
		return r.fail(resp, "", err)
	}
	management, operations := renderHelp(user)
	if err := resp.Reply(management); err != nil {
		return err
	}
	if operations == "" {
		return nil
	}
	return resp.Reply(operations)
}

// renderHelp lists the commands visible to u, split into management and
// operations sections. operations is empty when nothing in it is visible.
func renderHelp(u *models.User) (management, operations string) {
	var mgmt, ops []string
	for _, s := range commands {
		if !s.audience.visibleTo(u) {
			continue
		}
		line := s.usage() + " - " + s.description
		if s.operations {
			ops = append(ops, line)
		} else {
			mgmt = append(mgmt, line)
		}
	}
	management = msg("management") + "\n" + strings.Join(mgmt, "\n")
	if len(ops) > 0 {
		operations = msg("operations") + "\n" + strings.Join(ops, "\n")
	}
	return management, operations
}

func (r *Router) handleInfo(ctx context.Context, ev Event, resp Responder) error {
	user, err := r.svc.Info(ctx, ev.actor())
	if err != nil {
		return r.fail(resp, "", err)
	}

	lines := []string{
		msg("info"),
		infoLine("Username", ev.SenderUsername),
		infoLine("Registered", user != nil),
		infoLine("Approved", user != nil && user.Approved),
		infoLine("Blocked", user != nil && user.Blocked),
		infoLine("Locale", ev.SenderLocale),
		infoLine("ChatID", ev.SenderChatID),
	}
	if user != nil {
		lines = append(lines,
			infoLine("Admin", user.IsAdmin),
			infoLine("Updates", user.ReceivesUpdates),
		)
	}
	return resp.Reply(strings.Join(lines, "\n"))
}

func infoLine(key string, value any) string {
	return fmt.Sprintf("🔸 %s: %v", key, value)
}

func (r *Router) handleRegister(ctx context.Context, ev Event, resp Responder) error {
	user, err := r.svc.Register(ctx, ev.actor(), ev.Args)
	if err != nil {
		return r.fail(resp, ev.SenderUsername, err)
	}
	if err := resp.Reply(fmt.Sprintf(msg("registered"), user.Username)); err != nil {
		return err
	}
	return resp.Reply(msg("help_hint"))
}

func (r *Router) handleUnregister(ctx context.Context, ev Event, resp Responder) error {
	if err := r.svc.Unregister(ctx, ev.actor()); err != nil {
		return r.fail(resp, ev.SenderUsername, err)
	}
	return resp.Reply(fmt.Sprintf(msg("unregistered"), ev.SenderUsername))
}

func (r *Router) handleRequestApproval(ctx context.Context, ev Event, resp Responder) error {
	res, err := r.svc.RequestApproval(ctx, ev.actor())
	if err != nil {
		return r.fail(resp, ev.SenderUsername, err)
	}

	switch res.Outcome {
	case service.RequestCounted:
		return resp.Reply(fmt.Sprintf(msg("request_left"), res.Remaining))
	case service.RequestBlocked:
		if err := resp.Reply(fmt.Sprintf(msg("request_left"), res.Remaining)); err != nil {
			return err
		}
		return resp.Reply(msg("request_blocked"))
	case service.RequestApproved:
		return resp.Reply(msg("request_approved"))
	default:
		return resp.Reply(msg("request_sent"))
	}
}

func (r *Router) handleApprove(ctx context.Context, ev Event, resp Responder) error {
	if ev.Args == "" {
		return r.usage(resp, CmdApprove)
	}
	if err := r.svc.Decide(ctx, ev.actor(), ev.Args, service.DecisionApprove); err != nil {
		return r.fail(resp, ev.Args, err)
	}
	return resp.Reply(fmt.Sprintf(msg("approved"), ev.Args))
}

func (r *Router) handleBlock(ctx context.Context, ev Event, resp Responder) error {
	if ev.Args == "" {
		return r.usage(resp, CmdBlock)
	}
	if err := r.svc.Block(ctx, ev.actor(), ev.Args); err != nil {
		return r.fail(resp, ev.Args, err)
	}
	return resp.Reply(fmt.Sprintf(msg("blocked_user"), ev.Args))
}

func (r *Router) handleRemove(ctx context.Context, ev Event, resp Responder) error {
	if ev.Args == "" {
		return r.usage(resp, CmdRemove)
	}
	removed, err := r.svc.Remove(ctx, ev.actor(), ev.Args)
	if err != nil {
		return r.fail(resp, ev.Args, err)
	}
	if !removed {
		return resp.Reply(fmt.Sprintf(msg("not_removed"), ev.Args))
	}
	return resp.Reply(fmt.Sprintf(msg("removed"), ev.Args))
}

func (r *Router) handleUsers(ctx context.Context, ev Event, resp Responder) error {
	users, err := r.svc.Users(ctx, ev.actor())
	if err != nil {
		return r.fail(resp, "", err)
	}
	if len(users) == 0 {
		return resp.Reply(msg("no_users"))
	}

	lines := []string{msg("users")}
	for _, u := range users {
		lines = append(lines, fmt.Sprintf("🔸 %s: %s, admin=%t, updates=%t, requests=%d",
			u.Username, u.State(), u.IsAdmin, u.ReceivesUpdates, u.PendingRequests))
	}
	return resp.Reply(strings.Join(lines, "\n"))
}

func (r *Router) handleUpdates(ctx context.Context, ev Event, resp Responder) error {
	on, err := r.svc.ToggleUpdates(ctx, ev.actor())
	if err != nil {
		return r.fail(resp, ev.SenderUsername, err)
	}
	state := "off"
	if on {
		state = "on"
	}
	return resp.Reply(fmt.Sprintf(msg("updates"), state))
}

func (r *Router) handleNotify(ctx context.Context, ev Event, resp Responder) error {
	if ev.Args == "" {
		return r.usage(resp, CmdNotify)
	}
	sent, err := r.svc.Notify(ctx, ev.actor(), ev.Args)
	if err != nil {
		return r.fail(resp, ev.SenderUsername, err)
	}
	return resp.Reply(fmt.Sprintf(msg("sent"), sent))
}

func (r *Router) handleAnnounce(ctx context.Context, ev Event, resp Responder) error {
	if ev.Args == "" {
		return r.usage(resp, CmdAnnounce)
	}
	sent, err := r.svc.Announce(ctx, ev.actor(), ev.Args)
	if err != nil {
		return r.fail(resp, ev.SenderUsername, err)
	}
	return resp.Reply(fmt.Sprintf(msg("sent"), sent))
}

func (r *Router) policyHandler(forAdmin bool) handlerFunc {
	name := specFor(CmdUserPolicy).name
	if forAdmin {
		name = specFor(CmdAdminPolicy).name
	}
	return func(ctx context.Context, ev Event, resp Responder) error {
		if ev.Args == "" {
			p, err := r.svc.Policy(ctx, ev.actor())
			if err != nil {
				return r.fail(resp, "", err)
			}
			current := p.UserPolicy
			if forAdmin {
				current = p.AdminPolicy
			}
			return resp.Reply(fmt.Sprintf(msg("policy_current"), name, current))
		}
		if err := r.svc.SetPolicy(ctx, ev.actor(), forAdmin, ev.Args); err != nil {
			return r.fail(resp, "", err)
		}
		return resp.Reply(fmt.Sprintf(msg("policy_set"), ev.Args))
	}
}

func (r *Router) quotaHandler(forAdmin bool) handlerFunc {
	name := specFor(CmdUserMaxRequests).name
	if forAdmin {
		name = specFor(CmdAdminMaxRequests).name
	}
	return func(ctx context.Context, ev Event, resp Responder) error {
		if ev.Args == "" {
			p, err := r.svc.Policy(ctx, ev.actor())
			if err != nil {
				return r.fail(resp, "", err)
			}
			current := p.UserMaxRequests
			if forAdmin {
				current = p.AdminMaxRequests
			}
			return resp.Reply(fmt.Sprintf(msg("quota_current"), name, current))
		}
		if _, err := r.svc.Authorize(ctx, ev.actor(), service.NeedAdmin); err != nil {
			return r.fail(resp, "", err)
		}
		n, err := strconv.Atoi(ev.Args)
		if err != nil {
			return resp.Reply(msg("quota_bad"))
		}
		if err := r.svc.SetMaxRequests(ctx, ev.actor(), forAdmin, n); err != nil {
			return r.fail(resp, "", err)
		}
		return resp.Reply(fmt.Sprintf(msg("quota_set"), n))
	}
}

func (r *Router) handleImage(ctx context.Context, ev Event, resp Responder) error {
	if _, err := r.svc.Authorize(ctx, ev.actor(), service.NeedRegistered); err != nil {
		return r.fail(resp, ev.SenderUsername, err)
	}
	if ev.Args == "" {
		return r.usage(resp, CmdImage)
	}

	data, err := r.camera.Snapshot(ev.Args)
	switch {
	case errors.Is(err, media.ErrBadCamera):
		return resp.Reply(msg("bad_camera"))
	case errors.Is(err, os.ErrNotExist):
		return resp.Reply(fmt.Sprintf(msg("no_snapshot"), ev.Args))
	case err != nil:
		return r.fail(resp, ev.SenderUsername, err)
	}
	return resp.ReplyPhoto(data, fmt.Sprintf(msg("camera_caption"), ev.Args))
}

func (r *Router) handleLogs(ctx context.Context, ev Event, resp Responder) error {
	if _, err := r.svc.Authorize(ctx, ev.actor(), service.NeedRegistered); err != nil {
		return r.fail(resp, ev.SenderUsername, err)
	}
	if err := resp.Reply(msg("reading")); err != nil {
		return err
	}
	text, err := r.logs.Read()
	if err != nil {
		return r.fail(resp, ev.SenderUsername, err)
	}
	if strings.TrimSpace(text) == "" {
		return resp.Reply(msg("empty_file"))
	}
	return resp.Reply(text)
}
