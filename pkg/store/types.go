package store

import "encoding/json"

// Category is the wire name of an event category.
type Category string

const (
	CategorySessionStart Category = "user"
	CategorySessionEnd   Category = "session_end"
	CategoryBusiness     Category = "business"
	CategoryResource     Category = "resource"
	CategoryProgression  Category = "progression"
	CategoryDesign       Category = "design"
	CategoryError        Category = "error"
)

// StatusNew marks a spooled event that no flush cycle has claimed yet.
// Any other status value is a claim token owned by one in-flight flush.
const StatusNew = "new"

// EventRow is one spooled event. Payload is the full enriched event
// document exactly as it will appear in the collector batch.
type EventRow struct {
	Status    string
	Category  Category
	SessionID string
	ClientTS  int64
	Payload   json.RawMessage
}

// SessionRow is a heartbeat record for a live session. It exists so a
// session that died without a session_end event can be detected and
// closed on the next startup.
type SessionRow struct {
	SessionID string
	StartTS   int64
	Payload   json.RawMessage
}

// Size governance. Above MaxSpoolBytes the pipeline refuses all but the
// high-value categories; above TrimThresholdBytes the oldest sessions
// are dropped at open time.
const (
	MaxSpoolBytes      = 6291456
	TrimThresholdBytes = 5242880
	TrimSessionCount   = 3
)
