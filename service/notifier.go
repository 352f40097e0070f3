package service

import (
	"strings"
)

// Notifier delivers messages to chats other than the one being answered.
// Deliveries are best effort: callers log failures and carry on.
type Notifier interface {
	SendText(chatID int64, text string) error
	SendPhoto(chatID int64, data []byte, caption string) error
	SendChoicePrompt(chatID int64, text string, options []Choice) error
}

type Choice struct {
	Label string
	Token string
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionIgnore  Decision = "ignore"
)

func (d Decision) valid() bool {
	return d == DecisionApprove || d == DecisionReject || d == DecisionIgnore
}

const tokenSep = ":"

// Token encodes a decision about username for an inline button.
func Token(d Decision, username string) string {
	return string(d) + tokenSep + username
}

// ParseToken reverses Token.
func ParseToken(token string) (Decision, string, error) {
	raw, username, ok := strings.Cut(token, tokenSep)
	d := Decision(raw)
	if !ok || username == "" || !d.valid() {
		return "", "", ErrBadToken
	}
	return d, username, nil
}

// ApprovalChoices are the options offered to admins for a pending user.
func ApprovalChoices(username string) []Choice {
	return []Choice{
		{Label: "Yes", Token: Token(DecisionApprove, username)},
		{Label: "No", Token: Token(DecisionReject, username)},
		{Label: "Ignore", Token: Token(DecisionIgnore, username)},
	}
}
