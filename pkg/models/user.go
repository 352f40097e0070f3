package models

// UserState is derived from the approval flags; it is never stored.
type UserState string

const (
	StateUnregistered UserState = "unregistered"
	StateBlocked      UserState = "blocked"
	StatePending      UserState = "pending"
	StateApproved     UserState = "approved"
)

type User struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	ChatID          int64  `json:"chat_id"`
	IsAdmin         bool   `json:"is_admin"`
	Approved        bool   `json:"approved"`
	Blocked         bool   `json:"blocked"`
	ReceivesUpdates bool   `json:"receives_updates"`
	PendingRequests int    `json:"pending_request_count"`
}

// State reports the workflow state of u. A nil user is unregistered and
// blocked takes precedence over approved.
func (u *User) State() UserState {
	switch {
	case u == nil:
		return StateUnregistered
	case u.Blocked:
		return StateBlocked
	case u.Approved:
		return StateApproved
	default:
		return StatePending
	}
}
