package transport

// Response classifies a collector reply. Settlement depends only on
// this value: NoResponse is the single retried outcome; everything
// else counts as processed, including BadRequest, because a rejected
// batch retried forever would stall the queue. A plain 400 therefore
// drops the whole batch, valid events included.
type Response int

const (
	NoResponse Response = iota
	Ok
	Created
	Unauthorized
	BadRequest
	InternalServerError
	UnknownResponseCode
	BadResponse
	JSONEncodeFailed
	JSONDecodeFailed
)

func (r Response) String() string {
	switch r {
	case NoResponse:
		return "no_response"
	case Ok:
		return "ok"
	case Created:
		return "created"
	case Unauthorized:
		return "unauthorized"
	case BadRequest:
		return "bad_request"
	case InternalServerError:
		return "internal_server_error"
	case UnknownResponseCode:
		return "unknown_response_code"
	case BadResponse:
		return "bad_response"
	case JSONEncodeFailed:
		return "json_encode_failed"
	case JSONDecodeFailed:
		return "json_decode_failed"
	default:
		return "unknown"
	}
}

// Delivered reports whether the collector accepted the payload.
func (r Response) Delivered() bool {
	return r == Ok || r == Created
}

// classify maps an HTTP status to a response class. A 0 status shows
// up on some transports in place of 401.
func classify(statusCode int, body []byte) Response {
	if len(body) == 0 {
		return NoResponse
	}
	switch statusCode {
	case 200:
		return Ok
	case 201:
		return Created
	case 0, 401:
		return Unauthorized
	case 400:
		return BadRequest
	case 500:
		return InternalServerError
	default:
		return UnknownResponseCode
	}
}

// InitResponse is the remote-config handshake document.
type InitResponse struct {
	ServerTS    int64         `json:"server_ts"`
	Configs     []ConfigEntry `json:"configs"`
	ConfigsHash string        `json:"configs_hash"`
	AbID        string        `json:"ab_id"`
	AbVariantID string        `json:"ab_variant_id"`
	Enabled     *bool         `json:"enabled,omitempty"`

	// TimeOffset is computed client-side after the handshake and
	// persisted with the snapshot so it survives offline restarts.
	TimeOffset int64 `json:"time_offset"`
}

// ConfigEntry is one remote-config key with its validity window.
type ConfigEntry struct {
	Key     string `json:"key"`
	Value   any    `json:"value"`
	StartTS int64  `json:"start_ts"`
	EndTS   int64  `json:"end_ts"`
}
