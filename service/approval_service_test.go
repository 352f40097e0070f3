package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oxbobot/pkg/logger"
	"oxbobot/pkg/models"
	"oxbobot/storage"
	"oxbobot/storage/sqlite"
)

type sentText struct {
	chatID int64
	text   string
}

type sentPrompt struct {
	chatID  int64
	text    string
	options []Choice
}

type recordingNotifier struct {
	mu      sync.Mutex
	texts   []sentText
	prompts []sentPrompt
	fail    bool
}

func (n *recordingNotifier) SendText(chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("telegram unreachable")
	}
	n.texts = append(n.texts, sentText{chatID, text})
	return nil
}

func (n *recordingNotifier) SendPhoto(chatID int64, _ []byte, caption string) error {
	return n.SendText(chatID, caption)
}

func (n *recordingNotifier) SendChoicePrompt(chatID int64, text string, options []Choice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("telegram unreachable")
	}
	n.prompts = append(n.prompts, sentPrompt{chatID, text, options})
	return nil
}

func (n *recordingNotifier) textsTo(chatID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, t := range n.texts {
		if t.chatID == chatID {
			out = append(out, t.text)
		}
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = nil
	n.prompts = nil
}

var (
	alice = Actor{Username: "alice", ChatID: 1}
	bob   = Actor{Username: "bob", ChatID: 2}
	carol = Actor{Username: "carol", ChatID: 3}
)

type fixture struct {
	svc      ApprovalService
	stg      storage.IStorage
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stg, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "users.db"), "", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(stg.Close)

	n := &recordingNotifier{}
	svc := New(stg, n, Secrets{User: "batman", Admin: "superman"}, logger.NewNop())
	return &fixture{svc: svc.Approval(), stg: stg, notifier: n}
}

func (f *fixture) user(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := f.stg.User().Get(context.Background(), username)
	require.NoError(t, err)
	return u
}

func (f *fixture) setPolicy(t *testing.T, value models.PolicyValue) {
	t.Helper()
	ok, err := f.stg.Policy().Set(context.Background(), false, value)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRegisterScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u, err := f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, u.State())
	assert.Empty(t, f.notifier.texts, "no admin exists yet")

	u, err = f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, u.State())
	assert.True(t, u.IsAdmin)
	assert.Empty(t, f.notifier.textsTo(alice.ChatID), "only admins are told about registrations")

	res, err := f.svc.RequestApproval(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, RequestPrompted, res.Outcome)
	assert.Equal(t, 1, res.Prompted)
	require.Len(t, f.notifier.prompts, 1)
	prompt := f.notifier.prompts[0]
	assert.Equal(t, bob.ChatID, prompt.chatID)
	require.Len(t, prompt.options, 3)

	d, username, err := f.svc.DecidePrompt(ctx, bob, prompt.options[1].Token)
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, d)
	assert.Equal(t, "alice", username)

	assert.True(t, f.user(t, "alice").Blocked)
	assert.Equal(t, []string{"Your account has been blocked by bob"}, f.notifier.textsTo(alice.ChatID))
}

func TestRegisterNotifiesAdmins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, carol, "superman")
	require.NoError(t, err)
	assert.Equal(t, []string{"New user carol registered", "User carol is admin"}, f.notifier.textsTo(bob.ChatID))
	assert.Empty(t, f.notifier.textsTo(carol.ChatID), "the registrant is not an admin yet when admins are notified")

	f.notifier.reset()
	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	assert.Equal(t, []string{"New user alice registered"}, f.notifier.textsTo(bob.ChatID))
	assert.Equal(t, []string{"New user alice registered"}, f.notifier.textsTo(carol.ChatID))
}

func TestRegisterFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, Actor{ChatID: 9}, "batman")
	assert.ErrorIs(t, err, ErrMissingUsername)

	_, err = f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, alice, "joker")
	assert.ErrorIs(t, err, ErrBadPassword)
	assert.Nil(t, f.user(t, "alice"))
	assert.Equal(t, []string{"User alice tried to register with wrong password"}, f.notifier.textsTo(bob.ChatID))

	for _, password := range []string{"batman", "superman", "joker", ""} {
		_, err = f.svc.Register(ctx, bob, password)
		assert.ErrorIs(t, err, ErrAlreadyRegistered, "password %q", password)
	}
	assert.True(t, f.user(t, "bob").IsAdmin)
}

func TestRegisterBlockedUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	require.NoError(t, f.stg.User().SetBlocked(ctx, "alice", true))

	_, err = f.svc.Register(ctx, alice, "superman")
	assert.ErrorIs(t, err, ErrBlocked)
	assert.False(t, f.user(t, "alice").IsAdmin)
}

func TestRegisterAutoPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setPolicy(t, models.PolicyAuto)

	u, err := f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	assert.True(t, u.Approved)
	assert.True(t, f.user(t, "alice").Approved)

	_, err = f.svc.RequestApproval(ctx, alice)
	assert.ErrorIs(t, err, ErrAlreadyApproved)
}

func TestRegisterCtrlPolicyPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setPolicy(t, models.PolicyCtrl)

	u, err := f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, u.State())

	u, err = f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)
	assert.True(t, u.Approved, "admins bypass the user policy")
}

func TestRequestApprovalCtrlQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setPolicy(t, models.PolicyCtrl)

	_, err := f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		res, err := f.svc.RequestApproval(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, RequestCounted, res.Outcome)
		assert.Equal(t, 3-i, res.Remaining)

		u := f.user(t, "alice")
		assert.Equal(t, models.StatePending, u.State())
		assert.Equal(t, i, u.PendingRequests)
	}

	res, err := f.svc.RequestApproval(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, RequestBlocked, res.Outcome)
	assert.Zero(t, res.Remaining)
	assert.Equal(t, models.StateBlocked, f.user(t, "alice").State())

	_, err = f.svc.RequestApproval(ctx, alice)
	assert.ErrorIs(t, err, ErrBlocked)
}

// flippingPolicy reports ctrl on the first user policy read and auto after,
// as if an admin switched policy mid request.
type flippingPolicy struct {
	storage.IPolicyStorage
	reads int
}

func (p *flippingPolicy) Get(ctx context.Context, forAdmin bool) (models.PolicyValue, error) {
	if forAdmin {
		return p.IPolicyStorage.Get(ctx, forAdmin)
	}
	p.reads++
	if p.reads > 1 {
		return models.PolicyAuto, nil
	}
	return models.PolicyCtrl, nil
}

func TestRequestApprovalQuotaSkipsBlockAfterPolicyChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setPolicy(t, models.PolicyCtrl)
	ok, err := f.stg.Policy().SetMaxRequests(ctx, false, 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)

	policy := &flippingPolicy{IPolicyStorage: f.stg.Policy()}
	svc := &approvalService{
		users:    f.stg.User(),
		policy:   policy,
		notifier: f.notifier,
		secrets:  Secrets{User: "batman", Admin: "superman"},
		log:      logger.NewNop(),
	}

	res, err := svc.RequestApproval(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, RequestCounted, res.Outcome)
	assert.Zero(t, res.Remaining)
	assert.Equal(t, 2, policy.reads)

	u := f.user(t, "alice")
	assert.Equal(t, models.StatePending, u.State())
	assert.Equal(t, 1, u.PendingRequests)
}

func TestRequestApprovalAuto(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	f.setPolicy(t, models.PolicyAuto)

	res, err := f.svc.RequestApproval(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, RequestApproved, res.Outcome)

	u := f.user(t, "alice")
	assert.Equal(t, models.StateApproved, u.State())
	assert.Zero(t, u.PendingRequests)
}

func TestRequestApprovalUnlimitedPromptsEveryAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, carol, "superman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		res, err := f.svc.RequestApproval(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Prompted)
	}
	assert.Len(t, f.notifier.prompts, 10)
	assert.Zero(t, f.user(t, "alice").PendingRequests)
	assert.Equal(t, models.StatePending, f.user(t, "alice").State())
}

func TestRequestApprovalGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.RequestApproval(ctx, alice)
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = f.svc.RequestApproval(ctx, Actor{ChatID: 5})
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestDecidePromptFirstAnswerWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, carol, "superman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)

	_, _, err = f.svc.DecidePrompt(ctx, bob, Token(DecisionApprove, "alice"))
	require.NoError(t, err)
	_, _, err = f.svc.DecidePrompt(ctx, carol, Token(DecisionReject, "alice"))
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	u := f.user(t, "alice")
	assert.Equal(t, models.StateApproved, u.State())
	assert.Equal(t, []string{"Your account has been approved by bob"}, f.notifier.textsTo(alice.ChatID))
}

func TestDecidePromptIgnore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	f.notifier.reset()

	d, username, err := f.svc.DecidePrompt(ctx, bob, Token(DecisionIgnore, "alice"))
	require.NoError(t, err)
	assert.Equal(t, DecisionIgnore, d)
	assert.Equal(t, "alice", username)
	assert.Equal(t, models.StatePending, f.user(t, "alice").State())
	assert.Empty(t, f.notifier.texts)
}

func TestDecidePromptRejectsNonAdminsAndBadTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, carol, "batman")
	require.NoError(t, err)

	_, _, err = f.svc.DecidePrompt(ctx, carol, Token(DecisionApprove, "alice"))
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.False(t, f.user(t, "alice").Approved)

	_, _, err = f.svc.DecidePrompt(ctx, carol, "garbage")
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestDecideCommandMatchesPrompt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, carol, "batman")
	require.NoError(t, err)
	f.notifier.reset()

	require.NoError(t, f.svc.Decide(ctx, bob, "alice", DecisionApprove))
	_, _, err = f.svc.DecidePrompt(ctx, bob, Token(DecisionApprove, "carol"))
	require.NoError(t, err)

	assert.Equal(t, f.user(t, "alice").State(), f.user(t, "carol").State())
	assert.Equal(t, []string{"Your account has been approved by bob"}, f.notifier.textsTo(alice.ChatID))
	assert.Equal(t, []string{"Your account has been approved by bob"}, f.notifier.textsTo(carol.ChatID))

	err = f.svc.Decide(ctx, bob, "ghost", DecisionApprove)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestApproveUnblocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)

	require.NoError(t, f.svc.Decide(ctx, bob, "alice", DecisionReject))
	assert.Equal(t, models.StateBlocked, f.user(t, "alice").State())

	require.NoError(t, f.svc.Decide(ctx, bob, "alice", DecisionApprove))
	assert.Equal(t, models.StateApproved, f.user(t, "alice").State())
}

func TestBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	f.notifier.reset()

	require.NoError(t, f.svc.Block(ctx, bob, "alice"))
	assert.True(t, f.user(t, "alice").Blocked)
	assert.Empty(t, f.notifier.textsTo(alice.ChatID), "direct blocks are silent")

	assert.ErrorIs(t, f.svc.Block(ctx, bob, "ghost"), ErrUnknownUser)
	assert.ErrorIs(t, f.svc.Block(ctx, alice, "bob"), ErrBlocked)
}

func TestAdminGuardOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Users(ctx, alice)
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	_, err = f.svc.Users(ctx, alice)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	require.NoError(t, f.stg.User().SetBlocked(ctx, "alice", true))
	_, err = f.svc.Users(ctx, alice)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestRemoveAndUnregisterAreIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)

	removed, err := f.svc.Remove(ctx, bob, "alice")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.svc.Remove(ctx, bob, "alice")
	require.NoError(t, err)
	assert.False(t, removed)

	users, err := f.svc.Users(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, f.svc.Unregister(ctx, carol))
	require.NoError(t, f.svc.Unregister(ctx, bob))
	assert.Nil(t, f.user(t, "bob"))
}

func TestToggleUpdatesIsInvolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)

	on, err := f.svc.ToggleUpdates(ctx, bob)
	require.NoError(t, err)
	assert.False(t, on)
	on, err = f.svc.ToggleUpdates(ctx, bob)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, f.user(t, "bob").ReceivesUpdates)

	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	require.Equal(t, models.StatePending, f.user(t, "alice").State())
	on, err = f.svc.ToggleUpdates(ctx, alice)
	require.NoError(t, err, "pending users may toggle updates")
	assert.False(t, on)
	on, err = f.svc.ToggleUpdates(ctx, alice)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, f.user(t, "alice").ReceivesUpdates)

	require.NoError(t, f.svc.Block(ctx, bob, "alice"))
	_, err = f.svc.ToggleUpdates(ctx, alice)
	assert.ErrorIs(t, err, ErrBlocked)
	_, err = f.svc.ToggleUpdates(ctx, carol)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestSetPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)

	require.NoError(t, f.svc.SetPolicy(ctx, bob, false, "auto"))
	assert.ErrorIs(t, f.svc.SetPolicy(ctx, bob, false, "sometimes"), ErrInvalidPolicyValue)
	assert.ErrorIs(t, f.svc.SetPolicy(ctx, bob, true, ""), ErrInvalidPolicyValue)

	p, err := f.svc.Policy(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, models.PolicyAuto, p.UserPolicy)
	assert.Equal(t, models.PolicyCtrlUnlimited, p.AdminPolicy)

	require.NoError(t, f.svc.SetMaxRequests(ctx, bob, false, 1))
	assert.ErrorIs(t, f.svc.SetMaxRequests(ctx, bob, false, 0), ErrInvalidQuota)
	p, err = f.svc.Policy(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, p.UserMaxRequests)

	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.SetPolicy(ctx, alice, false, "ctrl"), ErrNotAuthorized)
}

func TestBroadcastFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setPolicy(t, models.PolicyAuto)

	for _, a := range []Actor{alice, bob, carol} {
		_, err := f.svc.Register(ctx, a, "batman")
		require.NoError(t, err)
	}
	_, err := f.svc.ToggleUpdates(ctx, carol)
	require.NoError(t, err)
	require.NoError(t, f.stg.User().SetBlocked(ctx, "bob", true))
	f.notifier.reset()

	sent, err := f.svc.Broadcast(ctx, "hello", "alice", false)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"hello"}, f.notifier.textsTo(bob.ChatID), "blocked users with updates on are included")
	assert.Empty(t, f.notifier.textsTo(alice.ChatID))
	assert.Empty(t, f.notifier.textsTo(carol.ChatID))

	sent, err = f.svc.Broadcast(ctx, "all", "alice", true)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
}

func TestNotifyAndAnnounce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)

	_, err = f.svc.Notify(ctx, alice, "hi")
	assert.ErrorIs(t, err, ErrNotApproved)

	f.notifier.reset()
	sent, err := f.svc.Notify(ctx, bob, "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"Message from bob: hi"}, f.notifier.textsTo(alice.ChatID))

	_, err = f.svc.Announce(ctx, alice, "nope")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	sent, err = f.svc.Announce(ctx, bob, "meeting")
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"Announcement from bob: meeting"}, f.notifier.textsTo(bob.ChatID))
}

func TestDeliveryFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)

	f.notifier.fail = true
	require.NoError(t, f.svc.Decide(ctx, bob, "alice", DecisionApprove))
	assert.True(t, f.user(t, "alice").Approved)

	_, err = f.svc.Register(ctx, carol, "batman")
	require.NoError(t, err)
	assert.NotNil(t, f.user(t, "carol"))
}

func TestIsAdminImmutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, bob, "superman")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, alice, "batman")
	require.NoError(t, err)

	require.NoError(t, f.svc.Decide(ctx, bob, "alice", DecisionApprove))
	require.NoError(t, f.svc.Block(ctx, bob, "alice"))
	require.NoError(t, f.svc.Decide(ctx, bob, "alice", DecisionApprove))
	_, err = f.svc.ToggleUpdates(ctx, alice)
	require.NoError(t, err)

	assert.False(t, f.user(t, "alice").IsAdmin)
	assert.True(t, f.user(t, "bob").IsAdmin)
}
