package domain

import (
	"fmt"
	"strings"
)

type NodeState string

const (
	NodeStopped  NodeState = "stopped"
	NodeStarting NodeState = "starting"
	NodeRunning  NodeState = "running"
	NodeStopping NodeState = "stopping"
	NodeError    NodeState = "error"
	NodeUnknown  NodeState = "unknown"
)

// ParseNodeState maps a raw supervisor state onto a NodeState. Anything it
// does not recognise becomes NodeUnknown.
func ParseNodeState(raw string) NodeState {
	switch state := NodeState(strings.ToLower(strings.TrimSpace(raw))); state {
	case NodeStopped, NodeStarting, NodeRunning, NodeStopping, NodeError:
		return state
	default:
		return NodeUnknown
	}
}

// NodeStatus is one observation of the local node. Optional fields are nil
// when the supervisor did not report them.
type NodeStatus struct {
	State         NodeState `json:"state"`
	PID           *int      `json:"pid,omitempty"`
	UptimeSeconds *int64    `json:"uptime_seconds,omitempty"`
	ClientPort    *int      `json:"client_port,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}

func (s NodeStatus) HasPort() bool {
	return s.ClientPort != nil && *s.ClientPort > 0
}

// Ready reports whether a session may be attempted against the node.
func (s NodeStatus) Ready(portRequired bool) bool {
	return s.State == NodeRunning && (!portRequired || s.HasPort())
}

// BaseURL builds the client API address for the reported port.
func (s NodeStatus) BaseURL(host string) (string, bool) {
	if !s.HasPort() {
		return "", false
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, *s.ClientPort), true
}

type NodeLogStream string

const (
	NodeLogStdout NodeLogStream = "stdout"
	NodeLogStderr NodeLogStream = "stderr"
	// NodeLogPort carries a detected client port in Port; Line holds the source line.
	NodeLogPort NodeLogStream = "port"
)

type NodeLogEvent struct {
	Stream NodeLogStream `json:"stream"`
	Line   string        `json:"line,omitempty"`
	Port   int           `json:"port,omitempty"`
}

func IntPtr(v int) *int {
	return &v
}

func Int64Ptr(v int64) *int64 {
	return &v
}
