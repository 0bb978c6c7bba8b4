// Package transport builds, signs and sends collector requests, and
// classifies what comes back. It holds no queue state; the pipeline
// settles spooled events based on the Response values returned here.
package transport

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/signalpipe/signalpipe-go/pkg/logging"
)

const (
	// DefaultBaseURL is the production collector.
	DefaultBaseURL = "https://api.signalpipe.io"

	eventsPathFormat = "/v2/%s/events"
	initPathFormat   = "/remote_configs/v1/init"

	defaultTimeout = 10 * time.Second
)

// Client is the collector delivery client.
type Client struct {
	baseURL string
	gameKey string
	secret  string
	useGzip bool
	http    *http.Client
	log     *logging.Logger

	errors *errorLimiter
}

// NewClient creates a delivery client. baseURL defaults to the
// production collector if empty. Compression is on by default;
// debug builds turn it off via SetGzip to keep payloads inspectable.
func NewClient(baseURL, gameKey, secret string, log *logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		gameKey: gameKey,
		secret:  secret,
		useGzip: true,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log,
		errors:  newErrorLimiter(),
	}
}

// SetGzip toggles payload compression.
func (c *Client) SetGzip(enabled bool) {
	c.useGzip = enabled
}

// SendEvents posts a batch of enriched events. The returned body is
// whatever the collector answered with, useful on BadRequest where it
// lists the offending events.
func (c *Client) SendEvents(ctx context.Context, events []json.RawMessage) (Response, json.RawMessage) {
	if len(events) == 0 {
		c.log.Debugf("SendEvents called with an empty batch")
		return JSONEncodeFailed, nil
	}

	body, err := json.Marshal(events)
	if err != nil {
		c.log.Debugf("failed to encode event batch: %v", err)
		return JSONEncodeFailed, nil
	}

	endpoint := c.baseURL + fmt.Sprintf(eventsPathFormat, c.gameKey)
	status, respBody, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Debugf("events request failed, might be no connection: %v", err)
		return NoResponse, nil
	}

	resp := classify(status, respBody)
	if resp == BadRequest {
		c.log.Debugf("events call rejected as bad request: %s", respBody)
	}
	return resp, respBody
}

// SendInit performs the remote-config handshake. The configs hash of
// the last-known snapshot rides along so an unchanged config costs no
// payload. BadRequest is returned with the logged body rather than
// treated as fatal; a body that will not decode is JSONDecodeFailed.
func (c *Client) SendInit(ctx context.Context, configsHash string, annotations any) (Response, *InitResponse) {
	body, err := json.Marshal(annotations)
	if err != nil {
		c.log.Debugf("failed to encode init annotations: %v", err)
		return JSONEncodeFailed, nil
	}

	query := url.Values{}
	query.Set("game_key", c.gameKey)
	query.Set("interval_seconds", "0")
	query.Set("configs_hash", configsHash)
	endpoint := c.baseURL + initPathFormat + "?" + query.Encode()

	status, respBody, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Debugf("init request failed, might be no connection: %v", err)
		return NoResponse, nil
	}

	resp := classify(status, respBody)
	if !resp.Delivered() && resp != BadRequest {
		c.log.Debugf("init call failed with %s", resp)
		return resp, nil
	}

	if resp == BadRequest {
		c.log.Debugf("init call rejected as bad request: %s", respBody)
		return resp, nil
	}

	var init InitResponse
	if err := json.Unmarshal(respBody, &init); err != nil {
		c.log.Debugf("init call returned an undecodable body: %v", err)
		return JSONDecodeFailed, nil
	}
	return resp, &init
}

// post signs and executes one request, returning the raw status and
// body. A transport-level error means no classified response exists.
func (c *Client) post(ctx context.Context, endpoint string, body []byte) (int, []byte, error) {
	payload, compressed, err := c.preparePayload(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to prepare payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}
	// The signature covers the bytes on the wire, compressed or not.
	// The secret itself never leaves the client.
	req.Header.Set("Authorization", Sign(c.secret, payload))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, nil
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) preparePayload(body []byte) ([]byte, bool, error) {
	if !c.useGzip {
		return body, false, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, false, err
	}
	if err := zw.Close(); err != nil {
		return nil, false, err
	}
	c.log.Debugf("gzip stats: size %d, compressed %d", len(body), buf.Len())
	return buf.Bytes(), true, nil
}

// Sign computes the Authorization value: base64 of an HMAC-SHA256 over
// the request body keyed by the game secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
