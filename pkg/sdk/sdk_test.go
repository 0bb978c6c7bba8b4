package sdk

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGameKey = "11111111111111111111111111111111"
	testSecret  = "1111111111111111111111111111111111111111"
)

// fakeCollector answers the handshake and records event batches.
type fakeCollector struct {
	mu         sync.Mutex
	events     []map[string]any
	initCalls  int
	enabled    bool
	initStatus int
}

func newFakeCollector() *fakeCollector {
	return &fakeCollector{enabled: true, initStatus: http.StatusCreated}
}

func (f *fakeCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	if r.Header.Get("Content-Encoding") == "gzip" {
		if zr, err := gzip.NewReader(bytes.NewReader(raw)); err == nil {
			raw, _ = io.ReadAll(zr)
			zr.Close()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, "/remote_configs/") {
		f.initCalls++
		w.WriteHeader(f.initStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"server_ts": time.Now().Unix(),
			"enabled":   f.enabled,
			"configs": []map[string]any{
				{"key": "difficulty", "value": "hard", "start_ts": 0, "end_ts": 9999999999},
			},
			"configs_hash": "hash-1",
		})
		return
	}

	var batch []map[string]any
	json.Unmarshal(raw, &batch)
	f.events = append(f.events, batch...)
	w.Write([]byte(`{}`))
}

func (f *fakeCollector) categories() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		category, _ := ev["category"].(string)
		out = append(out, category)
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func newTestSDK(t *testing.T, collector *fakeCollector) *SDK {
	t.Helper()
	server := httptest.NewServer(collector)
	t.Cleanup(server.Close)

	s := New()
	s.ConfigureBaseURL(server.URL)
	s.ConfigureWritablePath(t.TempDir())
	s.ConfigureBuild("0.1.0")
	return s
}

func TestInitializeStartsSessionAndFlushTimer(t *testing.T) {
	collector := newFakeCollector()
	s := newTestSDK(t, collector)

	require.NoError(t, s.Initialize(testGameKey, testSecret))

	waitFor(t, 5*time.Second, func() bool {
		for _, c := range collector.categories() {
			if c == "user" {
				return true
			}
		}
		return false
	})

	collector.mu.Lock()
	assert.Equal(t, 1, collector.initCalls)
	collector.mu.Unlock()

	assert.Equal(t, "hard", s.GetRemoteConfigsValueAsString("difficulty", "easy"))
	assert.True(t, s.IsRemoteConfigsReady())

	s.OnQuit()
}

func TestInitializeRejectsBadKeys(t *testing.T) {
	s := New()
	defer s.OnQuit()
	assert.Error(t, s.Initialize("short", "keys"))
}

func TestEventsFlowThroughOnQuit(t *testing.T) {
	collector := newFakeCollector()
	s := newTestSDK(t, collector)
	require.NoError(t, s.Initialize(testGameKey, testSecret))

	s.AddDesignEvent("menu:open", nil)
	s.AddErrorEvent("info", "all fine", nil)

	// OnQuit ends the session and forces a final flush; everything
	// spooled must reach the collector before it returns.
	s.OnQuit()

	categories := collector.categories()
	assert.Contains(t, categories, "user")
	assert.Contains(t, categories, "design")
	assert.Contains(t, categories, "error")
	assert.Contains(t, categories, "session_end")
}

func TestDisabledByCollector(t *testing.T) {
	collector := newFakeCollector()
	collector.enabled = false
	s := newTestSDK(t, collector)
	require.NoError(t, s.Initialize(testGameKey, testSecret))

	waitFor(t, 5*time.Second, func() bool {
		collector.mu.Lock()
		defer collector.mu.Unlock()
		return collector.initCalls > 0
	})

	s.AddDesignEvent("menu:open", nil)
	s.OnQuit()

	for _, category := range collector.categories() {
		assert.NotEqual(t, "user", category, "no session should start while disabled")
	}
}

func TestRemoteConfigDefaultAfterQuit(t *testing.T) {
	collector := newFakeCollector()
	s := newTestSDK(t, collector)
	require.NoError(t, s.Initialize(testGameKey, testSecret))

	waitFor(t, 5*time.Second, func() bool {
		collector.mu.Lock()
		defer collector.mu.Unlock()
		return collector.initCalls > 0
	})
	s.OnQuit()

	// The worker is gone, so reads fall back to the caller's default.
	assert.Equal(t, "easy", s.GetRemoteConfigsValueAsString("difficulty", "easy"))
	assert.False(t, s.IsRemoteConfigsReady())
}

func TestManualSessionHandling(t *testing.T) {
	collector := newFakeCollector()
	s := newTestSDK(t, collector)
	s.SetEnabledManualSessionHandling(true)

	require.NoError(t, s.Initialize(testGameKey, testSecret))
	waitFor(t, 5*time.Second, func() bool {
		collector.mu.Lock()
		defer collector.mu.Unlock()
		return collector.initCalls > 0
	})

	// With manual handling, suspend must not close the session.
	s.OnSuspend()
	s.EndSession()
	s.StartSession()

	waitFor(t, 5*time.Second, func() bool {
		count := 0
		for _, c := range collector.categories() {
			if c == "user" {
				count++
			}
		}
		return count >= 2
	})

	s.OnQuit()
}
