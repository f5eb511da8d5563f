package rpc

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultRequestTimeout bounds a call when the request does not set its own.
const DefaultRequestTimeout = 30 * time.Second

// Request is one outbound RPC call. Create it with NewRequest, adjust the
// fields you need, then hand it to Call or CallAsync. A Request is not
// reused after sending.
type Request struct {
	// TransactionID correlates this request with its response.
	TransactionID string

	// Method and Service name the operation and its target.
	Method  string
	Service string

	// Authority is the caller's privilege tier.
	Authority Authority

	// Params is the operation's argument object, already encoded.
	Params json.RawMessage

	// ResponseTopic is filled in by the client when the call is issued.
	ResponseTopic string

	// Timestamp is the creation time in milliseconds since the epoch.
	Timestamp int64

	// Timeout bounds how long a caller waits for the response.
	Timeout time.Duration
}

// requestEnvelope is the wire form of a Request.
type requestEnvelope struct {
	Method        string          `json:"method"`
	Service       string          `json:"service"`
	TransactionID string          `json:"transaction_id"`
	Authority     int             `json:"authority"`
	TimeoutMS     int64           `json:"timeout_ms"`
	Params        json.RawMessage `json:"params,omitempty"`
}

// NewRequest creates a request for service.method with a fresh transaction
// ID, the default timeout and User authority.
func NewRequest(method, service string) *Request {
	return &Request{
		TransactionID: NewTransactionID(),
		Method:        method,
		Service:       service,
		Authority:     AuthorityUser,
		Timestamp:     timestampMS(),
		Timeout:       DefaultRequestTimeout,
	}
}

// SetParams encodes v as the request's argument object.
func (r *Request) SetParams(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding params: %w", ErrSerialization, err)
	}
	r.Params = data
	return nil
}

// Encode serialises the request envelope.
func (r *Request) Encode() ([]byte, error) {
	env := requestEnvelope{
		Method:        r.Method,
		Service:       r.Service,
		TransactionID: r.TransactionID,
		Authority:     int(r.Authority),
		TimeoutMS:     r.Timeout.Milliseconds(),
		Params:        r.Params,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %w", ErrSerialization, err)
	}
	return data, nil
}

// DecodeRequest parses a request envelope from an inbound payload.
func DecodeRequest(payload []byte) (*Request, error) {
	var env requestEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding request: %w", ErrSerialization, err)
	}
	req := &Request{
		TransactionID: env.TransactionID,
		Method:        env.Method,
		Service:       env.Service,
		Authority:     Authority(env.Authority),
		Params:        env.Params,
		Timestamp:     timestampMS(),
		Timeout:       DefaultRequestTimeout,
	}
	if env.TimeoutMS > 0 {
		req.Timeout = time.Duration(env.TimeoutMS) * time.Millisecond
	}
	return req, nil
}

// timestampMS is the current time in milliseconds since the epoch.
func timestampMS() int64 {
	return time.Now().UnixMilli()
}
