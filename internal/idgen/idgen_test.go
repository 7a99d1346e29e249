package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIntervention(t *testing.T) {
	id := NewIntervention()
	require.True(t, strings.HasPrefix(id, PrefixIntervention))
	parsed, err := uuid.Parse(strings.TrimPrefix(id, PrefixIntervention))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	// v7 IDs created later sort after earlier ones
	next := NewIntervention()
	assert.Less(t, id, next)
}

func TestNewRequest(t *testing.T) {
	id := NewRequest()
	require.True(t, strings.HasPrefix(id, PrefixRequest))
	parsed, err := uuid.Parse(strings.TrimPrefix(id, PrefixRequest))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.NotEqual(t, id, NewRequest())
}
