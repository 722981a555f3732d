package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	Init()

	id := uuid.New()
	token, err := CreateSessionToken(id, "alice")
	require.NoError(t, err)

	sess, err := VerifySessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ParticipantID)
	assert.Equal(t, "alice", sess.Name)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	Init()

	_, err := VerifySessionToken("not-a-token")
	assert.Error(t, err)
}

func TestSessionFromRequest(t *testing.T) {
	Init()

	id := uuid.New()
	token, err := CreateSessionToken(id, "bob")
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/match/find", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	sess, err := SessionFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ParticipantID)
}

func TestSessionFromRequestCookie(t *testing.T) {
	Init()

	id := uuid.New()
	token, err := CreateSessionToken(id, "carol")
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/match/find", nil)
	r.Header.Set("Cookie", "auth_token="+token)
	sess, err := SessionFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ParticipantID)
}

func TestSessionFromRequestMissing(t *testing.T) {
	Init()

	r := httptest.NewRequest("POST", "/match/find", nil)
	_, err := SessionFromRequest(r)
	assert.Error(t, err)
}
