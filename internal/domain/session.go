package domain

import (
	"fmt"
	"strings"
)

type SessionState string

const (
	SessionIdle         SessionState = "idle"
	SessionConnecting   SessionState = "connecting"
	SessionConnected    SessionState = "connected"
	SessionDisconnected SessionState = "disconnected"
	SessionError        SessionState = "error"
)

// Session is the connector's view of the binding to the node. UserID is only
// set while Connected through an authenticated client.
type Session struct {
	State         SessionState
	UserID        string
	BaseURL       string
	LastError     string
	Authenticated bool
}

func (s Session) Connected() bool {
	return s.State == SessionConnected
}

// Credentials is what a successful login or register returns, and what is
// persisted between runs.
type Credentials struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	DeviceID    string `json:"device_id,omitempty"`
}

func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.UserID != ""
}

// ExplicitAuth carries caller supplied auth material for connect.
type ExplicitAuth struct {
	Username    string
	Password    string
	AccessToken string
	UserID      string
}

func (a ExplicitAuth) HasToken() bool {
	return a.AccessToken != "" && a.UserID != ""
}

func (a ExplicitAuth) HasPassword() bool {
	return a.Username != "" && a.Password != ""
}

// Fixed credential store schema.
const (
	KeyAccessToken = "swarmchat_access_token"
	KeyUserID      = "swarmchat_user_id"
	KeyBlockList   = "swarmchat_block_list"
	KeyMuteList    = "swarmchat_mute_list"
)

var restrictedWords = []string{"badword", "banned", "curse", "offensive"}

// CheckUsername rejects usernames containing a restricted word. The server
// enforces its own rules; this only gives early feedback.
func CheckUsername(username string) error {
	lower := strings.ToLower(username)
	for _, word := range restrictedWords {
		if strings.Contains(lower, word) {
			return fmt.Errorf("%w: contains %q", ErrRestrictedUsername, word)
		}
	}
	return nil
}
