package sdk

import "github.com/signalpipe/signalpipe-go/pkg/state"

// GetRemoteConfigsValueAsString returns the active value for a remote
// config key, or defaultValue when the key is absent or the handshake
// has not completed.
func (s *SDK) GetRemoteConfigsValueAsString(key, defaultValue string) string {
	// Starts at the default so a stopped worker still answers sanely.
	out := defaultValue
	s.onWorker(func() {
		if s.state != nil {
			out = s.state.RemoteConfigValue(key, defaultValue)
		}
	})
	return out
}

// IsRemoteConfigsReady reports whether a config snapshot, fresh or
// cached, has been merged.
func (s *SDK) IsRemoteConfigsReady() bool {
	var ready bool
	s.onWorker(func() {
		ready = s.state != nil && s.state.RemoteConfigsReady()
	})
	return ready
}

// GetRemoteConfigsContentAsString returns the merged config as a JSON
// object string.
func (s *SDK) GetRemoteConfigsContentAsString() string {
	var out string
	s.onWorker(func() {
		if s.state != nil {
			out = s.state.RemoteConfigsContent()
		}
	})
	return out
}

// GetABTestingID returns the experiment id assigned by the collector,
// or "".
func (s *SDK) GetABTestingID() string {
	var out string
	s.onWorker(func() {
		if s.state != nil {
			out = s.state.AbID()
		}
	})
	return out
}

// GetABTestingVariantID returns the experiment variant assigned by the
// collector, or "".
func (s *SDK) GetABTestingVariantID() string {
	var out string
	s.onWorker(func() {
		if s.state != nil {
			out = s.state.AbVariantID()
		}
	})
	return out
}

// AddRemoteConfigsListener registers for merge notifications. Safe to
// call before Initialize.
func (s *SDK) AddRemoteConfigsListener(l state.RemoteConfigsListener) {
	s.sched.Post(func() {
		if s.state != nil {
			s.state.AddRemoteConfigsListener(l)
			return
		}
		s.pending.listeners = append(s.pending.listeners, l)
	})
}

// RemoveRemoteConfigsListener unregisters a listener.
func (s *SDK) RemoveRemoteConfigsListener(l state.RemoteConfigsListener) {
	s.sched.Post(func() {
		if s.state != nil {
			s.state.RemoveRemoteConfigsListener(l)
		}
	})
}
