package rpc

import (
	"encoding/json"
	"fmt"
)

// Response is the outcome of one RPC exchange, either parsed from an inbound
// payload or constructed locally for timeouts and shutdowns.
type Response struct {
	// TransactionID echoes the request it answers.
	TransactionID string

	// Success distinguishes result-bearing from error-bearing responses.
	Success bool

	// Result holds the encoded result object when Success is true.
	Result json.RawMessage

	// ErrorCode and ErrorMessage describe the failure when Success is false.
	ErrorCode    int
	ErrorMessage string

	// Timestamp is in milliseconds since the epoch.
	Timestamp int64

	// ProcessingTime is the server-side handling duration in milliseconds.
	ProcessingTime int64
}

// responseEnvelope is the wire form of a Response.
type responseEnvelope struct {
	TransactionID  string          `json:"transaction_id"`
	Success        bool            `json:"success"`
	Timestamp      int64           `json:"timestamp"`
	ErrorCode      int             `json:"error_code"`
	ProcessingTime int64           `json:"processing_time_ms"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
}

// NewResponse returns a success response for the given transaction,
// timestamped now.
func NewResponse(transactionID string) *Response {
	return &Response{
		TransactionID: transactionID,
		Success:       true,
		Timestamp:     timestampMS(),
	}
}

// errorResponse builds a local failure response, used for timeouts and
// shutdown of pending calls.
func errorResponse(transactionID string, code int, message string) *Response {
	return &Response{
		TransactionID: transactionID,
		Success:       false,
		ErrorCode:     code,
		ErrorMessage:  message,
		Timestamp:     timestampMS(),
	}
}

// DecodeResult decodes the response's result object into v.
func (r *Response) DecodeResult(v any) error {
	if len(r.Result) == 0 {
		return fmt.Errorf("%w: response has no result", ErrInvalidParam)
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("%w: decoding result: %w", ErrSerialization, err)
	}
	return nil
}

// Encode serialises the response envelope.
func (r *Response) Encode() ([]byte, error) {
	env := responseEnvelope{
		TransactionID:  r.TransactionID,
		Success:        r.Success,
		Timestamp:      r.Timestamp,
		ErrorCode:      r.ErrorCode,
		ProcessingTime: r.ProcessingTime,
		ErrorMessage:   r.ErrorMessage,
		Result:         r.Result,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding response: %w", ErrSerialization, err)
	}
	return data, nil
}

// DecodeResponse parses a response envelope from an inbound payload.
func DecodeResponse(payload []byte) (*Response, error) {
	var env responseEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrSerialization, err)
	}
	return &Response{
		TransactionID:  env.TransactionID,
		Success:        env.Success,
		Result:         env.Result,
		ErrorCode:      env.ErrorCode,
		ErrorMessage:   env.ErrorMessage,
		Timestamp:      env.Timestamp,
		ProcessingTime: env.ProcessingTime,
	}, nil
}
