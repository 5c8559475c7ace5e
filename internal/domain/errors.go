package domain

import "errors"

var (
	ErrProbeFailure       = errors.New("node status probe failed")
	ErrNodeConfirmTimeout = errors.New("node did not reach the requested state in time")
	ErrNodeNotRunning     = errors.New("node is not running")
	ErrNodeAlreadyRunning = errors.New("node is already running")

	ErrNoPort             = errors.New("no-port")
	ErrServerProbeFailed  = errors.New("server-probe-failed")
	ErrAuthFailure        = errors.New("authentication failed")
	ErrRestrictedUsername = errors.New("username not allowed")
	ErrNotConnected       = errors.New("no live session")

	ErrSendFailure         = errors.New("send failed")
	ErrBlockedParticipant  = errors.New("other participant is blocked")
	ErrNoRoomSelected      = errors.New("no room selected")
	ErrEmptyMessage        = errors.New("message body is empty")
	ErrMessageNotFound     = errors.New("message not found")
	ErrMessageNotRetryable = errors.New("message is not in a failed state")

	ErrRemoteSyncFailure   = errors.New("remote moderation sync failed")
	ErrInvalidUserID       = errors.New("invalid user id")
	ErrAccountDataNotFound = errors.New("account data not found")

	ErrCredentialNotFound = errors.New("credential not found")
)
