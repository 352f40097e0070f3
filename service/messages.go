package service

// Texts delivered through the Notifier.
const (
	msgBadPassword    = "User %s tried to register with wrong password"
	msgNewUser        = "New user %s registered"
	msgNewAdmin       = "User %s is admin"
	msgApprovalPrompt = "User %s is asking for approval. Approve it?"
	msgApprovedBy     = "Your account has been approved by %s"
	msgBlockedBy      = "Your account has been blocked by %s"
	msgUserMessage    = "Message from %s: %s"
	msgAnnouncement   = "Announcement from %s: %s"
)
