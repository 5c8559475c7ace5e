package ports

import (
	"context"

	"github.com/bnema/swarmchat/internal/domain"
)

// NodeProbe is the status/control surface of the local node supervisor.
type NodeProbe interface {
	Status(ctx context.Context) (domain.NodeStatus, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NodeLogSource streams raw node output and port detection events.
type NodeLogSource interface {
	SubscribeLogs(handler func(domain.NodeLogEvent)) Subscription
}
