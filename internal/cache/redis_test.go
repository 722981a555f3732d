// internal/cache/redis_test.go
package cache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangePayloadRoundTrip(t *testing.T) {
	id := uuid.New()

	op, got, err := ParseChange(changePayload("set", id))
	require.NoError(t, err)
	assert.Equal(t, "set", op)
	assert.Equal(t, id, got)

	op, got, err = ParseChange(changePayload("del", id))
	require.NoError(t, err)
	assert.Equal(t, "del", op)
	assert.Equal(t, id, got)
}

func TestParseChangeRejectsGarbage(t *testing.T) {
	_, _, err := ParseChange("no-separator")
	assert.Error(t, err)

	_, _, err = ParseChange("del not-a-uuid")
	assert.Error(t, err)
}
