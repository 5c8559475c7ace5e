package ids

import (
	"github.com/google/uuid"

	"github.com/bnema/swarmchat/internal/ports"
)

var _ ports.IDGenerator = Generator{}

// Generator issues random transaction ids.
type Generator struct {
	Prefix string
}

func (g Generator) NewTransactionID() string {
	prefix := g.Prefix
	if prefix == "" {
		prefix = "txn"
	}
	return prefix + "-" + uuid.NewString()
}
