package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalpipe/signalpipe-go/pkg/logging"
	"github.com/signalpipe/signalpipe-go/pkg/platform"
	"github.com/signalpipe/signalpipe-go/pkg/transport"
	"github.com/signalpipe/signalpipe-go/pkg/validate"
)

func snapshot(entries ...transport.ConfigEntry) *transport.InitResponse {
	return &transport.InitResponse{
		ServerTS:    time.Now().Unix(),
		Configs:     entries,
		ConfigsHash: "hash-1",
		AbID:        "exp-a",
		AbVariantID: "v1",
	}
}

func entry(key string, value any) transport.ConfigEntry {
	return transport.ConfigEntry{Key: key, Value: value, StartTS: 0, EndTS: 9999999999}
}

func TestApplyInitResponse(t *testing.T) {
	s, _ := testState(t)
	require.NoError(t, s.LoadPersisted())

	enabled := s.ApplyInitResponse(snapshot(entry("difficulty", "hard")), true)
	assert.True(t, enabled)
	assert.True(t, s.Enabled())
	assert.True(t, s.RemoteConfigsReady())
	assert.Equal(t, "hard", s.RemoteConfigValue("difficulty", "easy"))
	assert.Equal(t, "easy", s.RemoteConfigValue("missing", "easy"))
	assert.Equal(t, "hash-1", s.ConfigsHash())
	assert.Equal(t, "exp-a", s.AbID())
	assert.Equal(t, "v1", s.AbVariantID())
}

func TestApplyInitResponseCarriesForwardOnOk(t *testing.T) {
	s, _ := testState(t)
	require.NoError(t, s.LoadPersisted())

	s.ApplyInitResponse(snapshot(entry("difficulty", "hard")), true)

	// An Ok answer with no configs means "unchanged": the previous
	// snapshot's configs and ids stay active.
	s.ApplyInitResponse(&transport.InitResponse{ServerTS: time.Now().Unix()}, false)
	assert.Equal(t, "hard", s.RemoteConfigValue("difficulty", "easy"))
	assert.Equal(t, "hash-1", s.ConfigsHash())
	assert.Equal(t, "exp-a", s.AbID())
}

func TestApplyInitResponseWindowFiltering(t *testing.T) {
	s, _ := testState(t)
	require.NoError(t, s.LoadPersisted())

	now := time.Now().Unix()
	s.ApplyInitResponse(snapshot(
		entry("active", "yes"),
		transport.ConfigEntry{Key: "expired", Value: "old", StartTS: 0, EndTS: now - 100},
		transport.ConfigEntry{Key: "future", Value: "soon", StartTS: now + 100, EndTS: now + 200},
		transport.ConfigEntry{Key: "", Value: "anonymous"},
		entry("numeric", float64(3)),
	), true)

	assert.Equal(t, "yes", s.RemoteConfigValue("active", ""))
	assert.Equal(t, "", s.RemoteConfigValue("expired", ""))
	assert.Equal(t, "", s.RemoteConfigValue("future", ""))
	// Whole floats read back without a decimal point.
	assert.Equal(t, "3", s.RemoteConfigValue("numeric", ""))
}

func TestApplyInitUnauthorized(t *testing.T) {
	s, _ := testState(t)
	require.NoError(t, s.LoadPersisted())

	s.ApplyInitUnauthorized()
	assert.False(t, s.Enabled())
}

func TestApplyInitFailureFallsBackToCache(t *testing.T) {
	s, st := testState(t)
	require.NoError(t, s.LoadPersisted())
	s.ApplyInitResponse(snapshot(entry("difficulty", "hard")), true)

	// Restart offline: the cached snapshot keeps the SDK enabled with
	// last-known config.
	s2 := New(st, validate.NewDefault(), platform.NewHost(), logging.New())
	require.True(t, s2.SetKeys(testGameKey, testSecret))
	require.NoError(t, s2.LoadPersisted())

	enabled := s2.ApplyInitFailure()
	assert.True(t, enabled)
	assert.True(t, s2.Enabled())
	assert.Equal(t, "hard", s2.RemoteConfigValue("difficulty", "easy"))
	assert.Equal(t, "hash-1", s2.ConfigsHash(), "cached hash restored for the next handshake")
}

func TestApplyInitFailureWithoutCache(t *testing.T) {
	s, _ := testState(t)
	require.NoError(t, s.LoadPersisted())

	enabled := s.ApplyInitFailure()
	assert.True(t, enabled, "no cache still authorizes with defaults")
	assert.True(t, s.RemoteConfigsReady())
}

func TestRemoteConfigDisablesSDK(t *testing.T) {
	s, _ := testState(t)
	require.NoError(t, s.LoadPersisted())

	disabled := false
	resp := snapshot()
	resp.Enabled = &disabled

	enabled := s.ApplyInitResponse(resp, true)
	assert.False(t, enabled)
	assert.False(t, s.Enabled())
}

func TestIdentifierChangeDiscardsConfigsHash(t *testing.T) {
	s, st := testState(t)
	require.NoError(t, s.LoadPersisted())
	s.ApplyInitResponse(snapshot(entry("difficulty", "hard")), true)

	// Same store, different user: the hash must not be reused.
	s2 := New(st, validate.NewDefault(), platform.NewHost(), logging.New())
	require.True(t, s2.SetKeys(testGameKey, testSecret))
	s2.SetUserID("someone-else")
	require.NoError(t, s2.LoadPersisted())
	assert.Equal(t, "", s2.ConfigsHash())
}

type recordingListener struct {
	updates int
}

func (l *recordingListener) OnRemoteConfigsUpdated() { l.updates++ }

func TestRemoteConfigsListeners(t *testing.T) {
	s, _ := testState(t)
	require.NoError(t, s.LoadPersisted())

	listener := &recordingListener{}
	s.AddRemoteConfigsListener(listener)
	s.AddRemoteConfigsListener(listener) // duplicate ignored

	s.ApplyInitResponse(snapshot(), true)
	assert.Equal(t, 1, listener.updates)

	s.RemoveRemoteConfigsListener(listener)
	s.ApplyInitResponse(snapshot(), true)
	assert.Equal(t, 1, listener.updates)
}

func TestClockOffsetInstalled(t *testing.T) {
	s, _ := testState(t)
	require.NoError(t, s.LoadPersisted())

	current := time.Unix(1700000000, 0)
	s.now = func() time.Time { return current }

	resp := snapshot()
	resp.ServerTS = current.Unix() + 120
	s.ApplyInitResponse(resp, true)

	assert.Equal(t, current.Unix()+120, s.ClientTSAdjusted())
}
