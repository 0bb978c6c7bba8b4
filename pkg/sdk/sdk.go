// Package sdk is the public entry point. It wires the spool, the
// delivery client and the shared state together and funnels every
// mutation through the scheduler's worker goroutine, so callers can use
// a single SDK value from any goroutine without locking.
package sdk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalpipe/signalpipe-go/pkg/events"
	"github.com/signalpipe/signalpipe-go/pkg/logging"
	"github.com/signalpipe/signalpipe-go/pkg/platform"
	"github.com/signalpipe/signalpipe-go/pkg/scheduler"
	"github.com/signalpipe/signalpipe-go/pkg/state"
	"github.com/signalpipe/signalpipe-go/pkg/store"
	"github.com/signalpipe/signalpipe-go/pkg/transport"
	"github.com/signalpipe/signalpipe-go/pkg/validate"
)

// spoolFile is the spool database filename inside the writable path.
const spoolFile = "signalpipe.db"

// pending holds configuration accepted before Initialize. It is applied
// to the state in one shot once the store is open.
type pending struct {
	build             string
	engineVersion     string
	userID            string
	dimensions01      []string
	dimensions02      []string
	dimensions03      []string
	currencies        []string
	itemTypes         []string
	writablePath      string
	baseURL           string
	manualSession     bool
	submissionEnabled bool
	listeners         []state.RemoteConfigsListener
}

// SDK is one telemetry instance. Create it with New, call the
// Configure methods, then Initialize. All methods are safe to call
// from any goroutine.
type SDK struct {
	log   *logging.Logger
	plat  platform.Platform
	crash platform.CrashReporter
	val   validate.Validator
	sched *scheduler.Scheduler

	// Mutated only on the worker goroutine after New returns.
	pending    pending
	store      *store.Store
	state      *state.State
	client     *transport.Client
	pipeline   *events.Pipeline
	flushTimer *scheduler.Timer

	initialized bool
}

// New creates an unconfigured SDK and starts its worker goroutine.
func New() *SDK {
	log := logging.New()
	return &SDK{
		log:   log,
		plat:  platform.NewHost(),
		crash: platform.NewSignalCrashReporter(),
		val:   validate.NewDefault(),
		sched: scheduler.New(log),
		pending: pending{
			baseURL:           transport.DefaultBaseURL,
			submissionEnabled: true,
		},
	}
}

// Logger exposes the SDK logger so hosts can install their own slog
// handler.
func (s *SDK) Logger() *logging.Logger { return s.log }

// SetEnabledInfoLog toggles info-level logging.
func (s *SDK) SetEnabledInfoLog(enabled bool) { s.log.SetDebug(enabled) }

// SetEnabledVerboseLog toggles per-event logging. Noisy.
func (s *SDK) SetEnabledVerboseLog(enabled bool) { s.log.SetVerbose(enabled) }

// SetEnabledEventSubmission turns event collection on or off. Off means
// events are discarded at the door, not spooled.
func (s *SDK) SetEnabledEventSubmission(enabled bool) {
	s.sched.Post(func() {
		if s.state != nil {
			s.state.SetSubmissionEnabled(enabled)
			return
		}
		s.pending.submissionEnabled = enabled
	})
}

// SetEnabledManualSessionHandling hands session boundaries to the host:
// OnResume and OnSuspend stop managing sessions and StartSession and
// EndSession take over.
func (s *SDK) SetEnabledManualSessionHandling(enabled bool) {
	s.sched.Post(func() {
		if s.state != nil {
			s.state.SetManualSession(enabled)
			return
		}
		s.pending.manualSession = enabled
	})
}

// SetEnabledCrashReporting controls whether fatal signals are converted
// to critical error events. Must be called before Initialize.
func (s *SDK) SetEnabledCrashReporting(enabled bool) {
	s.sched.Post(func() {
		if s.initialized {
			s.log.Warningf("crash reporting must be configured before initialize")
			return
		}
		if enabled {
			s.crash = platform.NewSignalCrashReporter()
		} else {
			s.crash = platform.NoopCrashReporter{}
		}
	})
}

// ConfigureBuild sets the game build string sent with every event.
func (s *SDK) ConfigureBuild(build string) {
	s.configure("build", func() bool {
		if !s.val.ValidateShortString(build, false) {
			return false
		}
		s.pending.build = build
		return true
	})
}

// ConfigureEngineVersion sets the engine identifier sent with every
// event, for engine wrappers.
func (s *SDK) ConfigureEngineVersion(version string) {
	s.configure("engine version", func() bool {
		if !s.val.ValidateShortString(version, false) {
			return false
		}
		s.pending.engineVersion = version
		return true
	})
}

// ConfigureUserID overrides the generated anonymous user id.
func (s *SDK) ConfigureUserID(userID string) {
	s.configure("user id", func() bool {
		if !s.val.ValidateShortString(userID, true) {
			return false
		}
		s.pending.userID = userID
		return true
	})
}

// ConfigureAvailableCustomDimensions01 sets the allow-list for the
// first custom dimension. Values set outside the list are discarded.
func (s *SDK) ConfigureAvailableCustomDimensions01(values []string) {
	s.configure("custom dimensions 01", func() bool {
		s.pending.dimensions01 = append([]string(nil), values...)
		return true
	})
}

// ConfigureAvailableCustomDimensions02 sets the allow-list for the
// second custom dimension.
func (s *SDK) ConfigureAvailableCustomDimensions02(values []string) {
	s.configure("custom dimensions 02", func() bool {
		s.pending.dimensions02 = append([]string(nil), values...)
		return true
	})
}

// ConfigureAvailableCustomDimensions03 sets the allow-list for the
// third custom dimension.
func (s *SDK) ConfigureAvailableCustomDimensions03(values []string) {
	s.configure("custom dimensions 03", func() bool {
		s.pending.dimensions03 = append([]string(nil), values...)
		return true
	})
}

// ConfigureAvailableResourceCurrencies sets the allow-list of virtual
// currencies accepted by resource events.
func (s *SDK) ConfigureAvailableResourceCurrencies(values []string) {
	s.configure("resource currencies", func() bool {
		s.pending.currencies = append([]string(nil), values...)
		return true
	})
}

// ConfigureAvailableResourceItemTypes sets the allow-list of item types
// accepted by resource events.
func (s *SDK) ConfigureAvailableResourceItemTypes(values []string) {
	s.configure("resource item types", func() bool {
		s.pending.itemTypes = append([]string(nil), values...)
		return true
	})
}

// ConfigureWritablePath overrides where the spool database lives. The
// default is a per-user cache directory.
func (s *SDK) ConfigureWritablePath(path string) {
	s.configure("writable path", func() bool {
		s.pending.writablePath = path
		return true
	})
}

// ConfigureBaseURL points the SDK at a different collector, typically a
// local mock while developing.
func (s *SDK) ConfigureBaseURL(baseURL string) {
	s.configure("base url", func() bool {
		s.pending.baseURL = baseURL
		return true
	})
}

func (s *SDK) configure(what string, apply func() bool) {
	s.sched.Post(func() {
		if s.initialized {
			s.log.Warningf("%s must be configured before initialize", what)
			return
		}
		if !apply() {
			s.log.Warningf("invalid %s, ignored", what)
		}
	})
}

// Initialize opens the spool, performs the collector handshake and
// starts the first session and the periodic flush. It returns once the
// key pair has passed local validation; the rest happens on the worker.
func (s *SDK) Initialize(gameKey, secret string) error {
	if !s.val.ValidateKeys(gameKey, secret) {
		return fmt.Errorf("invalid game key %q or secret", gameKey)
	}
	s.sched.Post(func() {
		if s.initialized {
			s.log.Warningf("already initialized, ignoring")
			return
		}
		if err := s.internalInitialize(gameKey, secret); err != nil {
			s.log.Errorf("initialize: %v", err)
		}
	})
	return nil
}

func (s *SDK) internalInitialize(gameKey, secret string) error {
	dir := s.pending.writablePath
	if dir == "" {
		dir = s.plat.WritablePath()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create writable path: %w", err)
	}

	st, err := store.Open(filepath.Join(dir, spoolFile), s.log)
	if err != nil {
		return fmt.Errorf("open spool: %w", err)
	}
	s.store = st

	s.state = state.New(st, s.val, s.plat, s.log)
	if !s.state.SetKeys(gameKey, secret) {
		return fmt.Errorf("invalid game key or secret")
	}
	s.applyPendingConfig()
	s.state.MarkStoreReady()

	if err := s.state.LoadPersisted(); err != nil {
		return fmt.Errorf("load persisted state: %w", err)
	}

	s.client = transport.NewClient(s.pending.baseURL, gameKey, secret, s.log)
	s.pipeline = events.NewPipeline(st, s.state, s.client, s.val, s.log)
	s.state.MarkInitialized()
	s.initialized = true

	s.crash.OnFatal(s.onFatalSignal)

	s.startNewSession(context.Background())

	s.flushTimer = s.sched.Every(events.FlushInterval*time.Second, func() {
		s.pipeline.Process(context.Background(), "", true)
	})
	s.log.Infof("initialized, spool at %s", st.Path())
	return nil
}

func (s *SDK) applyPendingConfig() {
	if s.pending.build != "" {
		s.state.SetBuild(s.pending.build)
	}
	if s.pending.engineVersion != "" {
		s.state.SetEngineVersion(s.pending.engineVersion)
	}
	if s.pending.userID != "" {
		s.state.SetUserID(s.pending.userID)
	}
	s.state.SetAvailableDimensions01(s.pending.dimensions01)
	s.state.SetAvailableDimensions02(s.pending.dimensions02)
	s.state.SetAvailableDimensions03(s.pending.dimensions03)
	s.state.SetAvailableCurrencies(s.pending.currencies)
	s.state.SetAvailableItemTypes(s.pending.itemTypes)
	s.state.SetSubmissionEnabled(s.pending.submissionEnabled)
	s.state.SetManualSession(s.pending.manualSession)
	for _, l := range s.pending.listeners {
		s.state.AddRemoteConfigsListener(l)
	}
	s.pending.listeners = nil
}

// onFatalSignal spools a critical error event and flushes before the
// signal is re-raised. Bounded wait: delivery is best effort when the
// process is already dying.
func (s *SDK) onFatalSignal(description string) {
	done := make(chan struct{})
	s.sched.Post(func() {
		defer close(done)
		s.pipeline.AddErrorEvent("critical", description, nil)
		s.pipeline.Process(context.Background(), "", false)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

// Flush forces a flush cycle outside the periodic schedule.
func (s *SDK) Flush() {
	s.sched.Post(func() {
		if !s.initialized {
			return
		}
		s.pipeline.Process(context.Background(), "", false)
	})
}

// onWorker runs fn on the worker goroutine and blocks until it has
// executed, for read accessors that need a consistent snapshot.
func (s *SDK) onWorker(fn func()) {
	done := make(chan struct{})
	queued := s.sched.Post(func() {
		defer close(done)
		fn()
	})
	if queued {
		<-done
	}
}
