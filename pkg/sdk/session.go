package sdk

import (
	"context"

	"github.com/signalpipe/signalpipe-go/pkg/transport"
)

// startNewSession runs the collector handshake, closes any session
// still open and, if the SDK is still enabled afterwards, begins a new
// session and announces it. Worker goroutine only.
func (s *SDK) startNewSession(ctx context.Context) {
	s.state.ValidateAndFixDimensions()

	resp, init := s.client.SendInit(ctx, s.state.ConfigsHash(), s.state.InitAnnotations())
	switch {
	case resp.Delivered() && init != nil:
		s.state.ApplyInitResponse(init, resp == transport.Created)
	case resp == transport.Unauthorized:
		s.state.ApplyInitUnauthorized()
		s.log.Warningf("collector refused the key pair, telemetry disabled for this run")
		return
	default:
		s.log.Infof("handshake failed (%s), using cached configuration", resp)
		s.state.ApplyInitFailure()
	}

	if s.state.SessionStarted() {
		s.pipeline.AddSessionEndEvent(ctx)
		s.state.EndSession()
	}

	if !s.state.Enabled() {
		s.log.Infof("telemetry disabled, session not started")
		return
	}

	sessionID, _ := s.state.BeginSession()
	s.pipeline.AddSessionStartEvent(ctx)
	s.log.Infof("session %s started (num %d)", sessionID, s.state.SessionNum())
	if s.flushTimer != nil {
		s.flushTimer.Resume()
	}
}

// endCurrentSession pauses the periodic flush, writes the session_end
// event (which flushes the spool on its own) and clears the session
// state. Worker goroutine only.
func (s *SDK) endCurrentSession(ctx context.Context) {
	if !s.state.SessionStarted() {
		return
	}
	if s.flushTimer != nil {
		s.flushTimer.Pause()
	}
	s.pipeline.AddSessionEndEvent(ctx)
	s.state.EndSession()
	s.log.Infof("session ended")
}

// StartSession begins a session explicitly. Only meaningful with
// manual session handling; an already-open session is closed first.
func (s *SDK) StartSession() {
	s.sched.Post(func() {
		if !s.initialized {
			s.log.Warningf("start session before initialize, ignored")
			return
		}
		if !s.state.ManualSession() {
			s.log.Warningf("start session ignored, manual session handling is off")
			return
		}
		ctx := context.Background()
		s.endCurrentSession(ctx)
		s.startNewSession(ctx)
	})
}

// EndSession closes the current session explicitly. Only meaningful
// with manual session handling.
func (s *SDK) EndSession() {
	s.sched.Post(func() {
		if !s.initialized || !s.state.ManualSession() {
			return
		}
		s.endCurrentSession(context.Background())
	})
}

// OnResume tells the SDK the host app came to the foreground. With
// automatic session handling this opens a fresh session.
func (s *SDK) OnResume() {
	s.sched.Post(func() {
		if !s.initialized || s.state.ManualSession() {
			return
		}
		if s.state.SessionStarted() {
			return
		}
		s.startNewSession(context.Background())
	})
}

// OnSuspend tells the SDK the host app went to the background. With
// automatic session handling this closes the session and pauses the
// periodic flush; the end event itself is flushed immediately.
func (s *SDK) OnSuspend() {
	s.sched.Post(func() {
		if !s.initialized || s.state.ManualSession() {
			return
		}
		s.endCurrentSession(context.Background())
	})
}

// OnQuit shuts the SDK down: the session is closed, the worker drains
// its queue, every timer is forced to fire one last time so the final
// flush happens, and the spool is closed. Blocks until done. The SDK
// cannot be used afterwards.
func (s *SDK) OnQuit() {
	s.sched.Post(func() {
		if !s.initialized {
			return
		}
		s.endCurrentSession(context.Background())
	})
	s.sched.Stop()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warningf("close spool: %v", err)
		}
	}
}
