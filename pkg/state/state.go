// Package state is the SDK lifecycle and session/config coordinator:
// game keys, session identity, persisted counters and dimensions, and
// the remote-config snapshots that gate whether events may be
// submitted at all.
//
// The State struct is pure bookkeeping. Orchestration that spans
// components (the init handshake, starting the flush timer) lives in
// pkg/sdk so this package stays free of upward dependencies.
package state

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalpipe/signalpipe-go/pkg/logging"
	"github.com/signalpipe/signalpipe-go/pkg/platform"
	"github.com/signalpipe/signalpipe-go/pkg/store"
	"github.com/signalpipe/signalpipe-go/pkg/transport"
	"github.com/signalpipe/signalpipe-go/pkg/validate"
)

// Phase is the coarse lifecycle position. Transitions only move
// forward; Initialized is terminal until quit.
type Phase int

const (
	Uninitialized Phase = iota
	KeysSet
	StoreReady
	Initialized
)

// Keys of persisted facts in the store's state table.
const (
	stateKeySessionNum     = "session_num"
	stateKeyTransactionNum = "transaction_num"
	stateKeyDefaultUserID  = "default_user_id"
	stateKeyDimension01    = "dimension01"
	stateKeyDimension02    = "dimension02"
	stateKeyDimension03    = "dimension03"
	stateKeyCachedConfig   = "sdk_config_cached"
	stateKeyLastIdentifier = "last_used_identifier"
)

// SDKVersion is stamped onto every event.
const SDKVersion = "signalpipe-go 1.0.0"

// State holds everything the coordinator persists or gates on.
type State struct {
	mu    sync.Mutex
	log   *logging.Logger
	store *store.Store
	val   validate.Validator
	plat  platform.Platform

	phase Phase

	gameKey string
	secret  string

	build         string
	engineVersion string
	userID        string
	defaultUserID string

	availableDimensions01 []string
	availableDimensions02 []string
	availableDimensions03 []string
	availableCurrencies   []string
	availableItemTypes    []string

	dimension01 string
	dimension02 string
	dimension03 string

	globalCustomFields map[string]any

	// submissionEnabled is the application-level kill switch;
	// enabled is the handshake outcome. Both must hold for events
	// to flow.
	submissionEnabled bool
	enabled           bool
	initAuthorized    bool
	manualSession     bool

	sessionID      string
	sessionStart   int64
	sessionNum     int64
	transactionNum int64

	progressionTries map[string]int

	clientServerOffset int64

	configsHash string
	abID        string
	abVariantID string

	configDefault *transport.InitResponse
	configCached  *transport.InitResponse
	configCurrent *transport.InitResponse

	configurations map[string]any
	configsReady   bool
	listeners      []RemoteConfigsListener

	now func() time.Time
}

// New creates coordinator state around an opened store.
func New(st *store.Store, val validate.Validator, plat platform.Platform, log *logging.Logger) *State {
	return &State{
		log:                log,
		store:              st,
		val:                val,
		plat:               plat,
		phase:              Uninitialized,
		submissionEnabled:  true,
		globalCustomFields: make(map[string]any),
		progressionTries:   make(map[string]int),
		configurations:     make(map[string]any),
		configDefault:      &transport.InitResponse{},
		now:                time.Now,
	}
}

// SetKeys records a validated key pair. Idempotent before Initialize;
// rejected afterwards.
func (s *State) SetKeys(gameKey, secret string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase >= Initialized {
		s.log.Warningf("cannot change keys after initialize")
		return false
	}
	if !s.val.ValidateKeys(gameKey, secret) {
		s.log.Warningf("invalid game key or secret")
		return false
	}
	s.gameKey = gameKey
	s.secret = secret
	if s.phase < KeysSet {
		s.phase = KeysSet
	}
	return true
}

func (s *State) GameKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameKey
}

func (s *State) Secret() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secret
}

// MarkStoreReady advances past KeysSet once the spool is open.
func (s *State) MarkStoreReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == KeysSet {
		s.phase = StoreReady
	}
}

// MarkInitialized is called by the SDK handle after persisted state is
// loaded.
func (s *State) MarkInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = Initialized
}

func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *State) IsInitialized() bool {
	return s.Phase() == Initialized
}

// Enabled reports the handshake outcome: false when the collector
// rejected the keys or remote config disabled the SDK.
func (s *State) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SubmissionEnabled is the application kill switch for event intake.
func (s *State) SubmissionEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissionEnabled
}

func (s *State) SetSubmissionEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissionEnabled = enabled
}

func (s *State) SetManualSession(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manualSession = enabled
}

func (s *State) ManualSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manualSession
}

// Configuration setters; all must run before Initialize.

func (s *State) SetBuild(build string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.build = build
}

func (s *State) SetEngineVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engineVersion = v
}

func (s *State) SetUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

func (s *State) SetAvailableDimensions01(values []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableDimensions01 = values
}

func (s *State) SetAvailableDimensions02(values []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableDimensions02 = values
}

func (s *State) SetAvailableDimensions03(values []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableDimensions03 = values
}

func (s *State) SetAvailableCurrencies(values []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableCurrencies = values
}

func (s *State) SetAvailableItemTypes(values []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableItemTypes = values
}

func (s *State) AvailableCurrencies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availableCurrencies
}

func (s *State) AvailableItemTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availableItemTypes
}

// SetDimension01 stores a current custom dimension. Values outside the
// allow-list are reset to empty rather than rejected; the leniency is
// deliberate so a stale dimension never blocks event intake.
func (s *State) SetDimension01(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.val.ValidateDimension(value, s.availableDimensions01) {
		s.log.Debugf("dimension01 %q not in configured list, resetting", value)
		value = ""
	}
	s.dimension01 = value
	s.persistState(stateKeyDimension01, value)
}

func (s *State) SetDimension02(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.val.ValidateDimension(value, s.availableDimensions02) {
		s.log.Debugf("dimension02 %q not in configured list, resetting", value)
		value = ""
	}
	s.dimension02 = value
	s.persistState(stateKeyDimension02, value)
}

func (s *State) SetDimension03(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.val.ValidateDimension(value, s.availableDimensions03) {
		s.log.Debugf("dimension03 %q not in configured list, resetting", value)
		value = ""
	}
	s.dimension03 = value
	s.persistState(stateKeyDimension03, value)
}

// Dimensions returns the three current custom dimensions.
func (s *State) Dimensions() (string, string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimension01, s.dimension02, s.dimension03
}

// ValidateAndFixDimensions resets any current dimension that is no
// longer in its allow-list, run before every session start.
func (s *State) ValidateAndFixDimensions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.val.ValidateDimension(s.dimension01, s.availableDimensions01) {
		s.dimension01 = ""
	}
	if !s.val.ValidateDimension(s.dimension02, s.availableDimensions02) {
		s.dimension02 = ""
	}
	if !s.val.ValidateDimension(s.dimension03, s.availableDimensions03) {
		s.dimension03 = ""
	}
}

// SetGlobalCustomFields replaces the default custom fields merged into
// every event.
func (s *State) SetGlobalCustomFields(fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalCustomFields = fields
}

// ValidatedCustomFields merges the global custom fields with the
// per-event ones and strips anything invalid.
func (s *State) ValidatedCustomFields(eventFields map[string]any) map[string]any {
	s.mu.Lock()
	merged := make(map[string]any, len(s.globalCustomFields)+len(eventFields))
	for k, v := range s.globalCustomFields {
		merged[k] = v
	}
	s.mu.Unlock()
	for k, v := range eventFields {
		merged[k] = v
	}
	return validate.CleanCustomFields(merged)
}

// Identifier is the user id stamped on events: the configured custom
// id when present, otherwise the persisted per-install default.
func (s *State) Identifier() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != "" {
		return s.userID
	}
	return s.defaultUserID
}

// LoadPersisted restores counters, dimensions, progression tries and
// the cached config snapshot from the store. Called once, on the
// worker goroutine, before the SDK is marked initialized.
func (s *State) LoadPersisted() error {
	facts, err := s.store.AllState()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Identity preference: persisted id, then the platform's device id,
	// then a generated one. Whatever wins is persisted so it stays
	// stable across restarts.
	if id := facts[stateKeyDefaultUserID]; id != "" {
		s.defaultUserID = id
	} else if id := s.plat.DeviceID(); id != "" {
		s.defaultUserID = id
	} else {
		s.defaultUserID = strings.ToLower(uuid.NewString())
	}
	s.persistState(stateKeyDefaultUserID, s.defaultUserID)

	s.sessionNum = parseCounter(facts[stateKeySessionNum])
	s.transactionNum = parseCounter(facts[stateKeyTransactionNum])

	// A persisted dimension wins over one set before initialize
	// only when nothing was set; a set value is re-persisted.
	s.dimension01 = restoreDimension(s.dimension01, facts[stateKeyDimension01], func(v string) { s.persistState(stateKeyDimension01, v) })
	s.dimension02 = restoreDimension(s.dimension02, facts[stateKeyDimension02], func(v string) { s.persistState(stateKeyDimension02, v) })
	s.dimension03 = restoreDimension(s.dimension03, facts[stateKeyDimension03], func(v string) { s.persistState(stateKeyDimension03, v) })

	s.loadCachedConfigLocked(facts)

	tries, err := s.store.AllProgression()
	if err != nil {
		return err
	}
	s.progressionTries = tries

	return nil
}

func restoreDimension(current, cached string, persist func(string)) string {
	if current != "" {
		persist(current)
		return current
	}
	return cached
}

func parseCounter(value string) int64 {
	if value == "" {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// persistState writes through to the store, logging instead of failing
// so a degraded store never takes the coordinator down. Callers hold
// the mutex.
func (s *State) persistState(key, value string) {
	if err := s.store.SetState(key, value); err != nil {
		s.log.Warningf("failed to persist %s: %v", key, err)
	}
}

// IncrementSessionNum bumps and persists the monotonic session
// counter, returning the new value.
func (s *State) IncrementSessionNum() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionNum++
	s.persistState(stateKeySessionNum, strconv.FormatInt(s.sessionNum, 10))
	return s.sessionNum
}

// IncrementTransactionNum bumps and persists the business-event
// transaction counter, returning the new value.
func (s *State) IncrementTransactionNum() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactionNum++
	s.persistState(stateKeyTransactionNum, strconv.FormatInt(s.transactionNum, 10))
	return s.transactionNum
}

func (s *State) SessionNum() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionNum
}

// IncrementProgressionTries bumps the persisted attempt counter for a
// progression path.
func (s *State) IncrementProgressionTries(progression string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progressionTries[progression]++
	if err := s.store.SetProgressionTries(progression, s.progressionTries[progression]); err != nil {
		s.log.Warningf("failed to persist progression tries: %v", err)
	}
}

// ProgressionTries returns the attempt count for a progression path.
func (s *State) ProgressionTries(progression string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressionTries[progression]
}

// ClearProgressionTries resets the counter after a Complete event has
// consumed it.
func (s *State) ClearProgressionTries(progression string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.progressionTries, progression)
	if err := s.store.SetProgressionTries(progression, 0); err != nil {
		s.log.Warningf("failed to clear progression tries: %v", err)
	}
}
