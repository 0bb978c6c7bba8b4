package state

import (
	"strings"

	"github.com/google/uuid"
)

// BeginSession assigns a fresh lowercase session id and stamps the
// start time. Only called once the handshake has left the SDK enabled.
func (s *State) BeginSession() (sessionID string, sessionNum int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = strings.ToLower(uuid.NewString())
	s.sessionStart = s.clientTSAdjustedLocked()
	return s.sessionID, s.sessionNum
}

// EndSession clears the session start marker. The session_end event is
// the pipeline's job; this only flips the nested session state back to
// NoSession.
func (s *State) EndSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionStart = 0
}

// SessionStarted reports whether a session is currently active.
func (s *State) SessionStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionStart != 0
}

func (s *State) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *State) SessionStart() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionStart
}

// SessionLength is adjusted-now minus session start, clamped to zero
// against device clock changes mid-session.
func (s *State) SessionLength() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	length := s.clientTSAdjustedLocked() - s.sessionStart
	if length < 0 {
		s.log.Warningf("session length calculated below zero, resetting to 0")
		length = 0
	}
	return length
}

// ClientTSAdjusted is the local clock shifted by the server offset
// learned in the handshake. Assigned once per event at enrichment time
// and never mutated after insertion.
func (s *State) ClientTSAdjusted() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientTSAdjustedLocked()
}

func (s *State) clientTSAdjustedLocked() int64 {
	return s.now().Unix() + s.clientServerOffset
}

// CalculateServerTimeOffset derives the clock offset from the
// handshake's server timestamp.
func (s *State) CalculateServerTimeOffset(serverTS int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return serverTS - s.now().Unix()
}
