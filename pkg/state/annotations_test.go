package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventAnnotations(t *testing.T) {
	s, _ := testState(t)
	require.NoError(t, s.LoadPersisted())
	s.SetBuild("1.2.3")
	s.BeginSession()

	ann := s.EventAnnotations()
	assert.Equal(t, 2, ann["v"])
	assert.Equal(t, s.Identifier(), ann["user_id"])
	assert.Equal(t, SDKVersion, ann["sdk_version"])
	assert.Equal(t, s.SessionID(), ann["session_id"])
	assert.Equal(t, "1.2.3", ann["build"])
	assert.NotEmpty(t, ann["event_uuid"])
	assert.NotZero(t, ann["client_ts"])
	// Optional fields stay absent when unset.
	_, hasEngine := ann["engine_version"]
	assert.False(t, hasEngine)
	_, hasAb := ann["ab_id"]
	assert.False(t, hasAb)

	// Every event gets its own uuid.
	again := s.EventAnnotations()
	assert.NotEqual(t, ann["event_uuid"], again["event_uuid"])

	// The embedded configurations map is a copy, not shared state.
	ann["configurations"].(map[string]any)["injected"] = true
	assert.Empty(t, s.Configurations())
}

func TestSDKErrorAnnotations(t *testing.T) {
	s, _ := testState(t)
	require.NoError(t, s.LoadPersisted())
	s.BeginSession()

	ann := s.SDKErrorAnnotations()
	assert.Equal(t, "sdk_error", ann["category"])
	_, hasSession := ann["session_id"]
	assert.False(t, hasSession, "self-errors carry no session identity")
	_, hasUser := ann["user_id"]
	assert.False(t, hasUser)
}

func TestInitAnnotations(t *testing.T) {
	s, _ := testState(t)
	require.NoError(t, s.LoadPersisted())
	s.IncrementSessionNum()

	ann := s.InitAnnotations()
	assert.Equal(t, s.Identifier(), ann["user_id"])
	assert.Equal(t, int64(1), ann["session_num"])
	assert.Equal(t, int64(1), ann["random_salt"])
}
