package state

import (
	"strings"

	"github.com/google/uuid"
)

// EventAnnotations builds the default fields merged into every event
// body: identity, device, session and remote-config context. The
// client_ts stamped here is final; nothing mutates it after insertion.
func (s *State) EventAnnotations() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	configurations := make(map[string]any, len(s.configurations))
	for k, v := range s.configurations {
		configurations[k] = v
	}

	out := map[string]any{
		"v":               2,
		"event_uuid":      strings.ToLower(uuid.NewString()),
		"user_id":         s.identifierLocked(),
		"configurations":  configurations,
		"sdk_version":     SDKVersion,
		"client_ts":       s.clientTSAdjustedLocked(),
		"os_version":      s.plat.OSVersion(),
		"manufacturer":    s.plat.DeviceManufacturer(),
		"device":          s.plat.DeviceModel(),
		"platform":        s.plat.BuildPlatform(),
		"session_id":      s.sessionID,
		"session_num":     s.sessionNum,
		"connection_type": s.plat.ConnectionType(),
	}

	addIfNotEmpty(out, "ab_id", s.abID)
	addIfNotEmpty(out, "ab_variant_id", s.abVariantID)
	addIfNotEmpty(out, "build", s.build)
	addIfNotEmpty(out, "engine_version", s.engineVersion)

	return out
}

// SDKErrorAnnotations is the reduced set stamped on self-error
// reports; no session or user identity rides along.
func (s *State) SDKErrorAnnotations() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]any{
		"v":               2,
		"event_uuid":      strings.ToLower(uuid.NewString()),
		"sdk_version":     SDKVersion,
		"client_ts":       s.clientTSAdjustedLocked(),
		"os_version":      s.plat.OSVersion(),
		"manufacturer":    s.plat.DeviceManufacturer(),
		"device":          s.plat.DeviceModel(),
		"platform":        s.plat.BuildPlatform(),
		"connection_type": s.plat.ConnectionType(),
		"category":        "sdk_error",
	}

	addIfNotEmpty(out, "build", s.build)
	addIfNotEmpty(out, "engine_version", s.engineVersion)

	return out
}

// InitAnnotations is the handshake request body. The identifier used
// is persisted so a changed user id invalidates the cached configs
// hash on the next start.
func (s *State) InitAnnotations() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.identifierLocked()
	if id != "" {
		s.persistState(stateKeyLastIdentifier, id)
	}

	out := map[string]any{
		"user_id":      id,
		"sdk_version":  SDKVersion,
		"os_version":   s.plat.OSVersion(),
		"manufacturer": s.plat.DeviceManufacturer(),
		"device":       s.plat.DeviceModel(),
		"platform":     s.plat.BuildPlatform(),
		"session_id":   s.sessionID,
		"session_num":  s.sessionNum,
		"random_salt":  s.sessionNum,
	}

	addIfNotEmpty(out, "build", s.build)
	addIfNotEmpty(out, "engine_version", s.engineVersion)

	return out
}

func addIfNotEmpty(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
