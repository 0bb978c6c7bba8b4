package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalpipe/signalpipe-go/pkg/logging"
)

const (
	testGameKey = "11111111111111111111111111111111"
	testSecret  = "1111111111111111111111111111111111111111"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, testGameKey, testSecret, logging.New())
}

func TestSendEventsSignsAndCompresses(t *testing.T) {
	var (
		gotPath     string
		gotAuth     string
		gotEncoding string
		gotBody     []byte
	)
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotEncoding = r.Header.Get("Content-Encoding")
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.Write([]byte(`{}`))
	})

	resp, _ := c.SendEvents(context.Background(), []json.RawMessage{[]byte(`{"category":"design"}`)})
	assert.Equal(t, Ok, resp)
	assert.Equal(t, "/v2/"+testGameKey+"/events", gotPath)
	assert.Equal(t, "gzip", gotEncoding)

	// The signature covers the compressed bytes on the wire.
	assert.Equal(t, Sign(testSecret, gotBody), gotAuth)

	zr, err := gzip.NewReader(bytes.NewReader(gotBody))
	require.NoError(t, err)
	decoded, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"category":"design"}]`, string(decoded))
}

func TestSendEventsWithoutGzip(t *testing.T) {
	var gotBody []byte
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		assert.Empty(t, r.Header.Get("Content-Encoding"))
		w.Write([]byte(`{}`))
	})
	c.SetGzip(false)

	resp, _ := c.SendEvents(context.Background(), []json.RawMessage{[]byte(`{"n":1}`)})
	assert.Equal(t, Ok, resp)
	assert.JSONEq(t, `[{"n":1}]`, string(gotBody))
}

func TestSendEventsClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   Response
	}{
		{"delivered", http.StatusOK, `{}`, Ok},
		{"created", http.StatusCreated, `{}`, Created},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad sig"}`, Unauthorized},
		{"bad request", http.StatusBadRequest, `[{"errors":["bad event"]}]`, BadRequest},
		{"server error", http.StatusInternalServerError, `{}`, InternalServerError},
		{"unknown code", http.StatusTeapot, `{}`, UnknownResponseCode},
		{"empty body", http.StatusOK, ``, NoResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			resp, _ := c.SendEvents(context.Background(), []json.RawMessage{[]byte(`{}`)})
			assert.Equal(t, tc.want, resp)
		})
	}
}

func TestSendEventsNoConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()
	c := NewClient(server.URL, testGameKey, testSecret, logging.New())

	resp, _ := c.SendEvents(context.Background(), []json.RawMessage{[]byte(`{}`)})
	assert.Equal(t, NoResponse, resp)
}

func TestSendEventsEmptyBatch(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected for an empty batch")
	})
	resp, _ := c.SendEvents(context.Background(), nil)
	assert.Equal(t, JSONEncodeFailed, resp)
}

func TestSendInit(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/remote_configs/v1/init", r.URL.Path)
		assert.Equal(t, testGameKey, r.URL.Query().Get("game_key"))
		assert.Equal(t, "0", r.URL.Query().Get("interval_seconds"))
		assert.Equal(t, "abc123", r.URL.Query().Get("configs_hash"))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"server_ts": 1700000000,
			"configs": [{"key":"difficulty","value":"hard","start_ts":0,"end_ts":9999999999}],
			"configs_hash": "def456",
			"ab_id": "exp1",
			"ab_variant_id": "b",
			"enabled": true
		}`))
	})

	resp, init := c.SendInit(context.Background(), "abc123", map[string]any{"user_id": "u1"})
	require.Equal(t, Created, resp)
	require.NotNil(t, init)
	assert.Equal(t, int64(1700000000), init.ServerTS)
	assert.Equal(t, "def456", init.ConfigsHash)
	assert.Equal(t, "exp1", init.AbID)
	assert.Len(t, init.Configs, 1)
	assert.Equal(t, "difficulty", init.Configs[0].Key)
	require.NotNil(t, init.Enabled)
	assert.True(t, *init.Enabled)
}

func TestSendInitFailures(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{}`))
		})
		resp, init := c.SendInit(context.Background(), "", nil)
		assert.Equal(t, Unauthorized, resp)
		assert.Nil(t, init)
	})

	t.Run("bad request keeps class", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"bad annotations"}`))
		})
		resp, init := c.SendInit(context.Background(), "", nil)
		assert.Equal(t, BadRequest, resp)
		assert.Nil(t, init)
	})

	t.Run("undecodable body", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		})
		resp, init := c.SendInit(context.Background(), "", nil)
		assert.Equal(t, JSONDecodeFailed, resp)
		assert.Nil(t, init)
	})
}

func mustGunzip(t *testing.T, data []byte) []byte {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return out
}

func TestSign(t *testing.T) {
	// Same input, same signature; different secret, different signature.
	a := Sign("secret-a", []byte("payload"))
	b := Sign("secret-a", []byte("payload"))
	other := Sign("secret-b", []byte("payload"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)
	assert.NotEmpty(t, a)
}
