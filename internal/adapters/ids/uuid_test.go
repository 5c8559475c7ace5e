package ids

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorIssuesUniquePrefixedIDs(t *testing.T) {
	gen := Generator{}
	first := gen.NewTransactionID()
	second := gen.NewTransactionID()

	assert.NotEqual(t, first, second)
	require.True(t, strings.HasPrefix(first, "txn-"))
	_, err := uuid.Parse(strings.TrimPrefix(first, "txn-"))
	assert.NoError(t, err)

	assert.True(t, strings.HasPrefix(Generator{Prefix: "retry"}.NewTransactionID(), "retry-"))
}
