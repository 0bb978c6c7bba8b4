package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// maxErrorReportsPerHour caps SDK self-error reports per
// (category, area) pair over a rolling hour.
const maxErrorReportsPerHour = 10

// errorLimiter tracks report counts per (category, area). The counter
// resets when the hour boundary since the first report is crossed.
type errorLimiter struct {
	mu      sync.Mutex
	windows map[string]*errorWindow
	now     func() time.Time
}

type errorWindow struct {
	start time.Time
	count int
}

func newErrorLimiter() *errorLimiter {
	return &errorLimiter{
		windows: make(map[string]*errorWindow),
		now:     time.Now,
	}
}

// allow reports whether another self-error for the pair may be sent,
// counting it if so.
func (l *errorLimiter) allow(category, area string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := category + ":" + area
	now := l.now()

	w, exists := l.windows[key]
	if !exists || now.Sub(w.start) >= time.Hour {
		w = &errorWindow{start: now}
		l.windows[key] = w
	}
	if w.count >= maxErrorReportsPerHour {
		return false
	}
	w.count++
	return true
}

// ReportSDKError sends a rate-limited "sdk_error" event describing an
// internal validation or fatal-condition failure. It is fire and
// forget on its own goroutine: self-error reporting must not block, or
// be blocked by, the worker goroutine driving the main pipeline.
func (c *Client) ReportSDKError(annotations map[string]any, category, area, action, parameter, reason string) {
	if !c.errors.allow(category, area) {
		return
	}

	event := make(map[string]any, len(annotations)+5)
	for k, v := range annotations {
		event[k] = v
	}
	event["category"] = "sdk_error"
	event["error_category"] = category
	event["error_area"] = area
	event["error_action"] = action
	if parameter != "" {
		event["error_parameter"] = parameter
	}
	if reason != "" {
		event["reason"] = reason
	}

	payload, err := json.Marshal(event)
	if err != nil {
		c.log.Debugf("failed to encode sdk error event: %v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		resp, _ := c.SendEvents(ctx, []json.RawMessage{payload})
		if !resp.Delivered() {
			c.log.Debugf("sdk error report not delivered: %s", resp)
		}
	}()
}
