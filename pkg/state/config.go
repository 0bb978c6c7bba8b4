package state

import (
	"encoding/json"
	"fmt"

	"github.com/signalpipe/signalpipe-go/pkg/transport"
)

// RemoteConfigsListener is notified after every remote-config merge.
type RemoteConfigsListener interface {
	OnRemoteConfigsUpdated()
}

// ConfigsHash identifies the last-known config snapshot; the handshake
// sends it so an unchanged config costs no payload.
func (s *State) ConfigsHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configsHash
}

func (s *State) AbID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abID
}

func (s *State) AbVariantID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abVariantID
}

// loadCachedConfigLocked restores the cross-session snapshot. When the
// identifier changed since the snapshot was written the configs hash is
// discarded so the next handshake fetches fresh config for the new
// user. Callers hold the mutex.
func (s *State) loadCachedConfigLocked(facts map[string]string) {
	raw := facts[stateKeyCachedConfig]
	if raw == "" {
		return
	}

	var cached transport.InitResponse
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		s.log.Errorf("failed to decode cached config snapshot: %v", err)
		return
	}

	identifier := s.userID
	if identifier == "" {
		identifier = s.defaultUserID
	}
	if last := facts[stateKeyLastIdentifier]; last != "" && last != identifier {
		cached.ConfigsHash = ""
	}

	s.configCached = &cached
	s.configsHash = cached.ConfigsHash
	s.abID = cached.AbID
	s.abVariantID = cached.AbVariantID
}

// ApplyInitResponse folds a successful handshake into the current and
// cached snapshots. When the collector answered Ok (not Created) the
// config did not change, so the previous snapshot's configs and ids
// are carried forward. Returns whether the SDK ends up enabled.
func (s *State) ApplyInitResponse(resp *transport.InitResponse, created bool) bool {
	if resp.ServerTS > 0 {
		resp.TimeOffset = s.CalculateServerTimeOffset(resp.ServerTS)
	}

	s.mu.Lock()

	if !created {
		prev := s.currentSnapshotLocked()
		if len(resp.Configs) == 0 {
			resp.Configs = prev.Configs
		}
		if resp.ConfigsHash == "" {
			resp.ConfigsHash = prev.ConfigsHash
		}
		if resp.AbID == "" {
			resp.AbID = prev.AbID
		}
		if resp.AbVariantID == "" {
			resp.AbVariantID = prev.AbVariantID
		}
	}

	s.configsHash = resp.ConfigsHash
	s.abID = resp.AbID
	s.abVariantID = resp.AbVariantID

	// Persist as the cross-session cache so the next offline start
	// still has last-known config and clock offset.
	if raw, err := json.Marshal(resp); err == nil {
		s.persistState(stateKeyCachedConfig, string(raw))
	} else {
		s.log.Errorf("failed to encode config snapshot: %v", err)
	}
	s.persistState(stateKeyLastIdentifier, s.identifierLocked())

	s.configCached = resp
	s.configCurrent = resp
	s.initAuthorized = true

	enabled, listeners := s.refreshEnabledLocked()
	s.mu.Unlock()
	notify(listeners)
	return enabled
}

// ApplyInitUnauthorized disables the SDK for this process lifetime.
func (s *State) ApplyInitUnauthorized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initAuthorized = false
	s.enabled = false
}

// ApplyInitFailure falls back to the cached snapshot, or the built-in
// default when no cache exists. The SDK stays authorized so it keeps
// operating offline on last-known config.
func (s *State) ApplyInitFailure() bool {
	s.mu.Lock()

	if s.configCurrent == nil {
		if s.configCached != nil {
			s.log.Infof("init call failed, using cached config values")
			s.configCurrent = s.configCached
		} else {
			s.log.Infof("init call failed, using default config values")
			s.configCurrent = s.configDefault
		}
	} else {
		s.log.Infof("init call failed, keeping current config values")
	}
	s.initAuthorized = true

	enabled, listeners := s.refreshEnabledLocked()
	s.mu.Unlock()
	notify(listeners)
	return enabled
}

func (s *State) currentSnapshotLocked() *transport.InitResponse {
	if s.configCurrent != nil {
		return s.configCurrent
	}
	if s.configCached != nil {
		return s.configCached
	}
	return s.configDefault
}

// refreshEnabledLocked recomputes the enabled flag from the active
// snapshot: remote config may force-disable, otherwise authorization
// decides. Also installs the clock offset and merges config entries.
// Returns the enabled flag and the listeners to notify once the lock
// is released.
func (s *State) refreshEnabledLocked() (bool, []RemoteConfigsListener) {
	snapshot := s.currentSnapshotLocked()

	if snapshot.Enabled != nil && !*snapshot.Enabled {
		s.enabled = false
	} else {
		s.enabled = s.initAuthorized
	}

	s.clientServerOffset = snapshot.TimeOffset
	listeners := s.populateConfigurationsLocked(snapshot)

	return s.enabled, listeners
}

func (s *State) identifierLocked() string {
	if s.userID != "" {
		return s.userID
	}
	return s.defaultUserID
}

// populateConfigurationsLocked merges entries whose validity window
// covers the current adjusted time into the key/value table and
// returns the listeners to notify. Notification happens outside the
// lock so listeners may read config. Callers hold the mutex.
func (s *State) populateConfigurationsLocked(snapshot *transport.InitResponse) []RemoteConfigsListener {
	now := s.clientTSAdjustedLocked()
	for _, entry := range snapshot.Configs {
		if entry.Key == "" || entry.Value == nil {
			continue
		}
		if now <= entry.StartTS || now >= entry.EndTS {
			continue
		}
		switch entry.Value.(type) {
		case string, float64, int, int64:
			s.configurations[entry.Key] = entry.Value
			s.log.Debugf("configuration added: %s", entry.Key)
		}
	}

	s.configsReady = true
	listeners := make([]RemoteConfigsListener, len(s.listeners))
	copy(listeners, s.listeners)
	return listeners
}

func notify(listeners []RemoteConfigsListener) {
	for _, l := range listeners {
		l.OnRemoteConfigsUpdated()
	}
}

// RemoteConfigValue returns the merged value for a key, or the default
// when absent.
func (s *State) RemoteConfigValue(key, defaultValue string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, exists := s.configurations[key]
	if !exists {
		return defaultValue
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return trimFloat(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// RemoteConfigsReady reports whether a merge has completed since
// startup.
func (s *State) RemoteConfigsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configsReady
}

// RemoteConfigsContent returns the merged table as a JSON document.
func (s *State) RemoteConfigsContent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(s.configurations)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Configurations returns a copy of the merged key/value table for
// event annotation.
func (s *State) Configurations() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.configurations))
	for k, v := range s.configurations {
		out[k] = v
	}
	return out
}

// AddRemoteConfigsListener registers a listener; duplicates are
// ignored.
func (s *State) AddRemoteConfigsListener(l RemoteConfigsListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.listeners {
		if existing == l {
			return
		}
	}
	s.listeners = append(s.listeners, l)
}

// RemoveRemoteConfigsListener unregisters a listener.
func (s *State) RemoveRemoteConfigsListener(l RemoteConfigsListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
