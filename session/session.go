package session

import "time"

// Session is one authenticated identity known to the credential provider.
// AccountID is the opaque reference used to request credentials for it.
type Session struct {
	AccountID       string    // Stable account identifier (oid.tid, or sub)
	LocalAccountID  string    // Object ID in the home tenant
	TenantID        string    // Tenant the identity signed in to
	Name            string    // Display name
	Username        string    // preferred_username or email
	AuthenticatedAt time.Time // When the provider last completed a sign-in for it
}

// EventType identifies a credential provider notification
type EventType int

const (
	LoginSucceeded EventType = iota + 1
	LoginFailed
	LogoutSucceeded
)

func (e EventType) String() string {
	switch e {
	case LoginSucceeded:
		return "login_succeeded"
	case LoginFailed:
		return "login_failed"
	case LogoutSucceeded:
		return "logout_succeeded"
	default:
		return "unknown"
	}
}

// Event is emitted by the credential provider. Session is set for
// LoginSucceeded and LogoutSucceeded, Err for LoginFailed.
type Event struct {
	Type    EventType
	Session *Session
	Err     error
}
