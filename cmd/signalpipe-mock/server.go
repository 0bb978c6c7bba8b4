package main

import (
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalpipe/signalpipe-go/pkg/logging"
	"github.com/signalpipe/signalpipe-go/pkg/transport"
)

var requestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "signalpipe_mock_requests_total",
		Help: "Requests handled by endpoint and status",
	},
	[]string{"endpoint", "status"},
)

var eventsReceived = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "signalpipe_mock_events_received_total",
		Help: "Events received by category",
	},
	[]string{"category"},
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(eventsReceived)
}

// Server is an in-memory stand-in for the collector, for SDK
// development and integration tests.
type Server struct {
	config  Config
	log     *logging.Logger
	configs []transport.ConfigEntry
}

func NewServer(config Config, log *logging.Logger) (*Server, error) {
	s := &Server{config: config, log: log}
	if config.ConfigsFile != "" {
		data, err := os.ReadFile(config.ConfigsFile)
		if err != nil {
			return nil, fmt.Errorf("read configs file: %w", err)
		}
		if err := json.Unmarshal(data, &s.configs); err != nil {
			return nil, fmt.Errorf("parse configs file: %w", err)
		}
	}
	return s, nil
}

func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/remote_configs/v1/init", s.handleInit)
	mux.HandleFunc("/v2/", s.handleEvents)
}

// readSignedBody verifies the signature over the raw body bytes, then
// transparently decompresses. Signing happens before compression is
// undone, exactly as the SDK computes it.
func (s *Server) readSignedBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	expected := transport.Sign(s.config.Secret, raw)
	if !hmac.Equal([]byte(expected), []byte(r.Header.Get("Authorization"))) {
		return nil, fmt.Errorf("signature mismatch")
	}
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(strings.NewReader(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("open gzip body: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}
	return raw, nil
}

// forced answers with the configured override. Returns false when no
// override applies and the handler should respond normally.
func (s *Server) forced(w http.ResponseWriter, endpoint string) bool {
	switch s.config.Force {
	case "":
		return false
	case "ok":
		s.respond(w, endpoint, http.StatusOK, map[string]any{})
	case "created":
		s.respond(w, endpoint, http.StatusCreated, map[string]any{})
	case "unauthorized":
		s.respond(w, endpoint, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
	case "bad-request":
		s.respond(w, endpoint, http.StatusBadRequest, []map[string]any{{"errors": []string{"forced rejection"}}})
	case "server-error":
		s.respond(w, endpoint, http.StatusInternalServerError, map[string]any{"error": "forced failure"})
	case "silent":
		// Empty body: the SDK treats this as no response and retries.
		requestsTotal.WithLabelValues(endpoint, "silent").Inc()
		w.WriteHeader(http.StatusOK)
	}
	return true
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Get("game_key") != s.config.GameKey {
		s.respond(w, "init", http.StatusUnauthorized, map[string]any{"error": "unknown game key"})
		return
	}
	body, err := s.readSignedBody(r)
	if err != nil {
		s.log.Warningf("init request refused: %v", err)
		s.respond(w, "init", http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}
	if s.forced(w, "init") {
		return
	}

	var annotations map[string]any
	if err := json.Unmarshal(body, &annotations); err != nil {
		s.respond(w, "init", http.StatusBadRequest, map[string]any{"error": "bad annotations"})
		return
	}
	s.log.Infof("init from user %v (session %v)", annotations["user_id"], annotations["session_id"])

	resp := map[string]any{
		"server_ts":    time.Now().Unix(),
		"enabled":      s.config.Enabled,
		"configs":      s.configs,
		"configs_hash": fmt.Sprintf("%08x", len(s.configs)),
	}
	status := http.StatusOK
	if r.URL.Query().Get("configs_hash") == "" {
		status = http.StatusCreated
	}
	s.respond(w, "init", status, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/events") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	gameKey := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v2/"), "/events")
	if gameKey != s.config.GameKey {
		s.respond(w, "events", http.StatusUnauthorized, map[string]any{"error": "unknown game key"})
		return
	}
	body, err := s.readSignedBody(r)
	if err != nil {
		s.log.Warningf("event batch refused: %v", err)
		s.respond(w, "events", http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}
	if s.forced(w, "events") {
		return
	}

	var batch []map[string]any
	if err := json.Unmarshal(body, &batch); err != nil {
		s.respond(w, "events", http.StatusBadRequest, []map[string]any{{"errors": []string{"body is not an event array"}}})
		return
	}
	for _, ev := range batch {
		category, _ := ev["category"].(string)
		eventsReceived.WithLabelValues(category).Inc()
		s.log.Verbosef("event: %v", ev)
	}
	s.log.Infof("accepted %d events", len(batch))
	s.respond(w, "events", http.StatusOK, map[string]any{})
}

func (s *Server) respond(w http.ResponseWriter, endpoint string, status int, body any) {
	requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warningf("write response: %v", err)
	}
}
