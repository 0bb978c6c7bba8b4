package sdk

// Event recording. Each call validates lazily on the worker goroutine
// and returns immediately; invalid events are reported through the SDK
// error channel, never back to the caller.

// AddBusinessEvent records a real-money purchase. Amount is in cents,
// currency is an ISO 4217 code. cartType and fields may be empty.
func (s *SDK) AddBusinessEvent(currency string, amount int64, itemType, itemID, cartType string, fields map[string]any) {
	s.onPipeline(func() {
		s.pipeline.AddBusinessEvent(currency, amount, itemType, itemID, cartType, fields)
	})
}

// AddResourceEvent records a virtual-currency flow. flowType is
// "Source" or "Sink"; currency and itemType must be on the configured
// allow-lists.
func (s *SDK) AddResourceEvent(flowType, currency string, amount float64, itemType, itemID string, fields map[string]any) {
	s.onPipeline(func() {
		s.pipeline.AddResourceEvent(flowType, currency, amount, itemType, itemID, fields)
	})
}

// AddProgressionEvent records progress through up to three nested
// parts. status is "Start", "Complete" or "Fail"; unused parts are "".
func (s *SDK) AddProgressionEvent(status, part01, part02, part03 string, fields map[string]any) {
	s.onPipeline(func() {
		s.pipeline.AddProgressionEvent(status, part01, part02, part03, 0, false, fields)
	})
}

// AddProgressionEventWithScore is AddProgressionEvent with a score
// attached. The score is dropped on "Start".
func (s *SDK) AddProgressionEventWithScore(status, part01, part02, part03 string, score int64, fields map[string]any) {
	s.onPipeline(func() {
		s.pipeline.AddProgressionEvent(status, part01, part02, part03, score, true, fields)
	})
}

// AddDesignEvent records a free-form gameplay event. eventID is one to
// five colon-separated parts.
func (s *SDK) AddDesignEvent(eventID string, fields map[string]any) {
	s.onPipeline(func() {
		s.pipeline.AddDesignEvent(eventID, 0, false, fields)
	})
}

// AddDesignEventWithValue is AddDesignEvent with a numeric value.
func (s *SDK) AddDesignEventWithValue(eventID string, value float64, fields map[string]any) {
	s.onPipeline(func() {
		s.pipeline.AddDesignEvent(eventID, value, true, fields)
	})
}

// AddErrorEvent records a game-reported error. severity is one of
// "debug", "info", "warning", "error", "critical".
func (s *SDK) AddErrorEvent(severity, message string, fields map[string]any) {
	s.onPipeline(func() {
		s.pipeline.AddErrorEvent(severity, message, fields)
	})
}

func (s *SDK) onPipeline(fn func()) {
	s.sched.Post(func() {
		if !s.initialized {
			s.log.Warningf("event before initialize, dropped")
			return
		}
		fn()
	})
}

// SetCustomDimension01 tags subsequent events with a value from the
// first dimension allow-list. "" clears it; an off-list value resets
// it.
func (s *SDK) SetCustomDimension01(value string) {
	s.onPipeline(func() { s.state.SetDimension01(value) })
}

// SetCustomDimension02 tags subsequent events with a value from the
// second dimension allow-list.
func (s *SDK) SetCustomDimension02(value string) {
	s.onPipeline(func() { s.state.SetDimension02(value) })
}

// SetCustomDimension03 tags subsequent events with a value from the
// third dimension allow-list.
func (s *SDK) SetCustomDimension03(value string) {
	s.onPipeline(func() { s.state.SetDimension03(value) })
}

// SetGlobalCustomFields attaches fields to every subsequent event.
// Event-level fields win on key collision.
func (s *SDK) SetGlobalCustomFields(fields map[string]any) {
	s.sched.Post(func() {
		if s.state != nil {
			s.state.SetGlobalCustomFields(fields)
		}
	})
}
