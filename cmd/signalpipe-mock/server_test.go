package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/signalpipe/signalpipe-go/pkg/logging"
	"github.com/signalpipe/signalpipe-go/pkg/transport"
)

func testServer(t *testing.T, config Config) *httptest.Server {
	t.Helper()
	if config.Addr == "" {
		config.Addr = defaultAddr
	}
	if config.GameKey == "" {
		config.GameKey = defaultGameKey
		config.Secret = defaultSecret
	}
	server, err := NewServer(config, logging.New())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	mux := http.NewServeMux()
	server.Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func signedPost(t *testing.T, url string, body []byte, secret string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", transport.Sign(secret, body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEventsEndpointAcceptsSignedBatch(t *testing.T) {
	ts := testServer(t, Config{Enabled: true})

	body := []byte(`[{"category":"design","event_id":"a:b"}]`)
	resp := signedPost(t, ts.URL+"/v2/"+defaultGameKey+"/events", body, defaultSecret)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestEventsEndpointRejectsBadSignature(t *testing.T) {
	ts := testServer(t, Config{Enabled: true})

	body := []byte(`[{"category":"design"}]`)
	resp := signedPost(t, ts.URL+"/v2/"+defaultGameKey+"/events", body, "4444444444444444444444444444444444444444")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for a wrong secret, got %d", resp.StatusCode)
	}
}

func TestEventsEndpointRejectsUnknownGameKey(t *testing.T) {
	ts := testServer(t, Config{Enabled: true})

	body := []byte(`[]`)
	resp := signedPost(t, ts.URL+"/v2/22222222222222222222222222222222/events", body, defaultSecret)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for an unknown game key, got %d", resp.StatusCode)
	}
}

func TestInitEndpoint(t *testing.T) {
	ts := testServer(t, Config{Enabled: true})

	body := []byte(`{"user_id":"u1","session_id":"s1"}`)
	// No configs_hash: the handshake counts as first contact.
	resp := signedPost(t, ts.URL+"/remote_configs/v1/init?game_key="+defaultGameKey, body, defaultSecret)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 without configs_hash, got %d", resp.StatusCode)
	}

	var init transport.InitResponse
	if err := json.NewDecoder(resp.Body).Decode(&init); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if init.ServerTS == 0 {
		t.Errorf("expected a server timestamp")
	}
	if init.Enabled == nil || !*init.Enabled {
		t.Errorf("expected enabled=true")
	}

	// With a hash the answer downgrades to plain 200.
	resp = signedPost(t, ts.URL+"/remote_configs/v1/init?game_key="+defaultGameKey+"&configs_hash=abc", body, defaultSecret)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with configs_hash, got %d", resp.StatusCode)
	}
}

func TestForcedResponses(t *testing.T) {
	cases := []struct {
		force string
		want  int
	}{
		{"unauthorized", http.StatusUnauthorized},
		{"bad-request", http.StatusBadRequest},
		{"server-error", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.force, func(t *testing.T) {
			ts := testServer(t, Config{Enabled: true, Force: tc.force})
			body := []byte(`[{"category":"design"}]`)
			resp := signedPost(t, ts.URL+"/v2/"+defaultGameKey+"/events", body, defaultSecret)
			if resp.StatusCode != tc.want {
				t.Errorf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}
