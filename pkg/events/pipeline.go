package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/signalpipe/signalpipe-go/pkg/logging"
	"github.com/signalpipe/signalpipe-go/pkg/state"
	"github.com/signalpipe/signalpipe-go/pkg/store"
	"github.com/signalpipe/signalpipe-go/pkg/transport"
	"github.com/signalpipe/signalpipe-go/pkg/validate"
)

// MaxBatchSize caps how many events a single flush cycle may claim.
const MaxBatchSize = 500

// FlushInterval is how often the scheduler drains the spool.
const FlushInterval = 8 // seconds

// Pipeline spools validated events and drains them to the collector.
// All methods are expected to run on the scheduler worker goroutine;
// the pipeline itself holds no locks.
type Pipeline struct {
	store  *store.Store
	state  *state.State
	client *transport.Client
	val    validate.Validator
	log    *logging.Logger
}

func NewPipeline(st *store.Store, ga *state.State, client *transport.Client, val validate.Validator, log *logging.Logger) *Pipeline {
	return &Pipeline{store: st, state: ga, client: client, val: val, log: log}
}

// submissionAllowed requires both the application kill switch and the
// handshake outcome: a collector-disabled SDK takes nothing in and
// sends nothing out.
func (p *Pipeline) submissionAllowed() bool {
	return p.state.SubmissionEnabled() && p.state.Enabled()
}

// AddSessionStartEvent records the start of the current session and
// flushes it immediately so the collector sees new sessions promptly.
func (p *Pipeline) AddSessionStartEvent(ctx context.Context) {
	if !p.submissionAllowed() {
		return
	}
	num := p.state.IncrementSessionNum()
	ev := map[string]any{
		"category":    string(store.CategorySessionStart),
		"session_num": num,
	}
	p.addDimensions(ev)
	p.addCustomFields(ev, nil)
	p.addToStore(store.CategorySessionStart, ev)
	p.Process(ctx, store.CategorySessionStart, false)
}

// AddSessionEndEvent records the end of the current session with its
// length in seconds and flushes the whole spool.
func (p *Pipeline) AddSessionEndEvent(ctx context.Context) {
	if !p.submissionAllowed() {
		return
	}
	ev := map[string]any{
		"category": string(store.CategorySessionEnd),
		"length":   p.state.SessionLength(),
	}
	p.addDimensions(ev)
	p.addCustomFields(ev, nil)
	p.addToStore(store.CategorySessionEnd, ev)
	p.Process(ctx, "", false)
}

// AddBusinessEvent records a real-money purchase.
func (p *Pipeline) AddBusinessEvent(currency string, amount int64, itemType, itemID, cartType string, fields map[string]any) {
	if !p.submissionAllowed() {
		return
	}
	if res := p.val.ValidateBusinessEvent(currency, amount, cartType, itemType, itemID); !res.Ok {
		p.rejectEvent(store.CategoryBusiness, res)
		return
	}
	num := p.state.IncrementTransactionNum()
	ev := map[string]any{
		"category":        string(store.CategoryBusiness),
		"event_id":        itemType + ":" + itemID,
		"currency":        currency,
		"amount":          amount,
		"transaction_num": num,
	}
	if cartType != "" {
		ev["cart_type"] = cartType
	}
	p.addDimensions(ev)
	p.addCustomFields(ev, fields)
	p.addToStore(store.CategoryBusiness, ev)
}

// AddResourceEvent records a virtual-currency flow. Sink flows are
// stored with a negated amount.
func (p *Pipeline) AddResourceEvent(flowType, currency string, amount float64, itemType, itemID string, fields map[string]any) {
	if !p.submissionAllowed() {
		return
	}
	res := p.val.ValidateResourceEvent(flowType, currency, amount, itemType, itemID,
		p.state.AvailableCurrencies(), p.state.AvailableItemTypes())
	if !res.Ok {
		p.rejectEvent(store.CategoryResource, res)
		return
	}
	if flowType == "Sink" {
		amount = -amount
	}
	ev := map[string]any{
		"category": string(store.CategoryResource),
		"event_id": flowType + ":" + currency + ":" + itemType + ":" + itemID,
		"amount":   amount,
	}
	p.addDimensions(ev)
	p.addCustomFields(ev, fields)
	p.addToStore(store.CategoryResource, ev)
}

// AddProgressionEvent records an attempt through up to three
// progression parts. Attempt counts persist across restarts: Fail and
// Complete bump the counter, Complete reports and clears it.
func (p *Pipeline) AddProgressionEvent(status, part01, part02, part03 string, score int64, sendScore bool, fields map[string]any) {
	if !p.submissionAllowed() {
		return
	}
	if res := p.val.ValidateProgressionEvent(status, part01, part02, part03); !res.Ok {
		p.rejectEvent(store.CategoryProgression, res)
		return
	}
	progression := part01
	if part02 != "" {
		progression += ":" + part02
		if part03 != "" {
			progression += ":" + part03
		}
	}
	ev := map[string]any{
		"category": string(store.CategoryProgression),
		"event_id": status + ":" + progression,
	}
	if sendScore && status != "Start" {
		ev["score"] = score
	}
	switch status {
	case "Fail":
		p.state.IncrementProgressionTries(progression)
	case "Complete":
		p.state.IncrementProgressionTries(progression)
		ev["attempt_num"] = p.state.ProgressionTries(progression)
		p.state.ClearProgressionTries(progression)
	}
	p.addDimensions(ev)
	p.addCustomFields(ev, fields)
	p.addToStore(store.CategoryProgression, ev)
}

// AddDesignEvent records a free-form gameplay event keyed by a
// colon-separated id of one to five parts.
func (p *Pipeline) AddDesignEvent(eventID string, value float64, sendValue bool, fields map[string]any) {
	if !p.submissionAllowed() {
		return
	}
	if res := p.val.ValidateDesignEvent(eventID); !res.Ok {
		p.rejectEvent(store.CategoryDesign, res)
		return
	}
	ev := map[string]any{
		"category": string(store.CategoryDesign),
		"event_id": eventID,
	}
	if sendValue {
		ev["value"] = value
	}
	p.addDimensions(ev)
	p.addCustomFields(ev, fields)
	p.addToStore(store.CategoryDesign, ev)
}

// AddErrorEvent records a game-reported error with a severity level.
func (p *Pipeline) AddErrorEvent(severity, message string, fields map[string]any) {
	if !p.submissionAllowed() {
		return
	}
	if res := p.val.ValidateErrorEvent(severity, message); !res.Ok {
		p.rejectEvent(store.CategoryError, res)
		return
	}
	ev := map[string]any{
		"category": string(store.CategoryError),
		"severity": severity,
		"message":  message,
	}
	p.addDimensions(ev)
	p.addCustomFields(ev, fields)
	p.addToStore(store.CategoryError, ev)
}

func (p *Pipeline) rejectEvent(category store.Category, res validate.Result) {
	p.log.Warningf("%s event rejected: %s", category, res.Reason)
	EventsDropped.WithLabelValues(string(category)).Inc()
	p.client.ReportSDKError(p.state.SDKErrorAnnotations(), res.Category, res.Area, "", res.Parameter, res.Reason)
}

func (p *Pipeline) addDimensions(ev map[string]any) {
	d1, d2, d3 := p.state.Dimensions()
	if d1 != "" {
		ev["custom_01"] = d1
	}
	if d2 != "" {
		ev["custom_02"] = d2
	}
	if d3 != "" {
		ev["custom_03"] = d3
	}
}

func (p *Pipeline) addCustomFields(ev map[string]any, eventFields map[string]any) {
	merged := p.state.ValidatedCustomFields(eventFields)
	if len(merged) > 0 {
		ev["custom_fields"] = merged
	}
}

// addToStore merges the shared annotations under the event-specific
// fields and persists the result. Session start, session end and
// business events bypass the spool size cap so the signal that matters
// most survives a full disk.
func (p *Pipeline) addToStore(category store.Category, ev map[string]any) {
	if p.store.TooLargeForEvents() {
		switch category {
		case store.CategorySessionStart, store.CategorySessionEnd, store.CategoryBusiness:
		default:
			p.log.Warningf("spool over size cap, %s event refused", category)
			EventsBlocked.Inc()
			p.client.ReportSDKError(p.state.SDKErrorAnnotations(),
				"database", "db_too_large", "", "", "spool over size cap")
			return
		}
	}

	merged := p.state.EventAnnotations()
	for k, v := range ev {
		merged[k] = v
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		p.log.Errorf("encode %s event: %v", category, err)
		return
	}
	sessionID, _ := merged["session_id"].(string)
	clientTS := numberAsInt64(merged["client_ts"])

	if err := p.store.InsertEvent(category, sessionID, clientTS, payload); err != nil {
		p.log.Errorf("spool %s event: %v", category, err)
		return
	}
	EventsAdded.WithLabelValues(string(category)).Inc()
	p.log.Verbosef("event added: %s", payload)

	if category == store.CategorySessionEnd {
		if err := p.store.DeleteHeartbeat(sessionID); err != nil {
			p.log.Warningf("clear session heartbeat: %v", err)
		}
	} else {
		p.updateSessionHeartbeat()
	}
}

// updateSessionHeartbeat snapshots the current session so a later run
// can synthesize a session_end if this process dies without one.
func (p *Pipeline) updateSessionHeartbeat() {
	if !p.state.SessionStarted() {
		return
	}
	ev := p.state.EventAnnotations()
	p.addDimensions(ev)
	p.addCustomFields(ev, nil)
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Errorf("encode session heartbeat: %v", err)
		return
	}
	if err := p.store.UpsertHeartbeat(p.state.SessionID(), p.state.SessionStart(), payload); err != nil {
		p.log.Warningf("update session heartbeat: %v", err)
	}
}

// Process runs one flush cycle: claim a batch of unclaimed events,
// deliver it, and settle the claim by the response class. Only a
// missing response reverts the claim; every decided response, good or
// bad, deletes the batch so nothing is sent twice.
//
// With cleanup set the cycle first reclaims batches orphaned by an
// earlier crash and closes out sessions that never wrote an end event.
func (p *Pipeline) Process(ctx context.Context, category store.Category, cleanup bool) {
	if !p.submissionAllowed() {
		return
	}

	if cleanup {
		if err := p.store.ResetClaims(); err != nil {
			p.log.Errorf("reset orphaned claims: %v", err)
			return
		}
		p.fixMissingSessionEnds()
	}

	count, err := p.store.CountNew(category)
	if err != nil {
		p.log.Errorf("count spooled events: %v", err)
		return
	}
	QueueDepth.Set(float64(count))
	SpoolBytes.Set(float64(p.store.SizeBytes()))
	if count == 0 {
		p.updateSessionHeartbeat()
		return
	}

	var cutoff int64
	if count > MaxBatchSize {
		cutoff, err = p.store.BatchCutoff(category, MaxBatchSize)
		if err != nil {
			p.log.Errorf("select batch cutoff: %v", err)
			return
		}
		if cutoff == 0 {
			p.log.Errorf("no batch cutoff found for %d queued events", count)
			return
		}
	}

	token := uuid.NewString()
	claimed, err := p.store.ClaimNew(token, category, cutoff)
	if err != nil {
		p.log.Errorf("claim batch %s: %v", token, err)
		return
	}
	if claimed == 0 {
		return
	}

	rows, err := p.store.ClaimedEvents(token)
	if err != nil {
		p.log.Errorf("load batch %s: %v", token, err)
		return
	}

	batch := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		payload, ok := p.decodeRow(row)
		if !ok {
			continue
		}
		batch = append(batch, payload)
	}
	BatchSize.Set(float64(len(batch)))
	p.log.Infof("sending %d events (batch %s)", len(batch), token)

	resp, body := p.client.SendEvents(ctx, batch)
	p.settle(token, resp, body)
}

// decodeRow re-parses a spooled payload and strips a client_ts the
// collector would reject. Rows that no longer parse are dropped; they
// stay claimed and the settlement delete removes them.
func (p *Pipeline) decodeRow(row store.EventRow) (json.RawMessage, bool) {
	var ev map[string]any
	if err := json.Unmarshal(row.Payload, &ev); err != nil {
		p.log.Debugf("dropping undecodable spooled event (session %s): %v", row.SessionID, err)
		return nil, false
	}
	if raw, present := ev["client_ts"]; present {
		if !p.val.ValidateClientTS(numberAsInt64(raw)) {
			delete(ev, "client_ts")
			fixed, err := json.Marshal(ev)
			if err != nil {
				return nil, false
			}
			return fixed, true
		}
	}
	return row.Payload, true
}

func (p *Pipeline) settle(token string, resp transport.Response, body json.RawMessage) {
	switch {
	case resp.Delivered():
		Flushes.WithLabelValues("delivered").Inc()
		p.log.Infof("batch %s delivered (%s)", token, resp)
		if err := p.store.DeleteClaimed(token); err != nil {
			p.log.Errorf("delete delivered batch %s: %v", token, err)
		}
	case resp == transport.NoResponse:
		Flushes.WithLabelValues("no_response").Inc()
		p.log.Warningf("no response for batch %s, keeping events for retry", token)
		if err := p.store.RevertClaimed(token); err != nil {
			p.log.Errorf("revert batch %s: %v", token, err)
		}
	case resp == transport.BadRequest:
		Flushes.WithLabelValues("bad_request").Inc()
		p.log.Warningf("collector rejected batch %s: %s", token, truncateBody(body))
		if err := p.store.DeleteClaimed(token); err != nil {
			p.log.Errorf("delete rejected batch %s: %v", token, err)
		}
	default:
		Flushes.WithLabelValues("failed").Inc()
		p.log.Warningf("batch %s failed (%s), dropping events", token, resp)
		if err := p.store.DeleteClaimed(token); err != nil {
			p.log.Errorf("delete failed batch %s: %v", token, err)
		}
	}
}

// fixMissingSessionEnds synthesizes a session_end for every session
// heartbeat left behind by a crashed run. The event reuses the dead
// session's own annotations, so its session_id and client_ts override
// the current ones when it goes through addToStore.
func (p *Pipeline) fixMissingSessionEnds() {
	stale, err := p.store.StaleSessions(p.state.SessionID())
	if err != nil {
		p.log.Errorf("load stale sessions: %v", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	p.log.Infof("closing %d session(s) without an end event", len(stale))
	for _, row := range stale {
		var ev map[string]any
		if err := json.Unmarshal(row.Payload, &ev); err != nil {
			p.log.Warningf("dropping undecodable heartbeat for session %s: %v", row.SessionID, err)
			if err := p.store.DeleteHeartbeat(row.SessionID); err != nil {
				p.log.Warningf("delete heartbeat: %v", err)
			}
			continue
		}
		length := numberAsInt64(ev["client_ts"]) - row.StartTS
		if length < 0 {
			length = 0
		}
		ev["category"] = string(store.CategorySessionEnd)
		ev["length"] = length
		p.addToStore(store.CategorySessionEnd, ev)
	}
}

func numberAsInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func truncateBody(body json.RawMessage) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 400 {
		return fmt.Sprintf("%s... (%d bytes)", s[:400], len(s))
	}
	return s
}
