package rpc

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewRequestDefaults(t *testing.T) {
	req := NewRequest("set_level", "lighting")

	if !ValidateTransactionID(req.TransactionID) {
		t.Errorf("transaction ID %q is not valid", req.TransactionID)
	}
	if req.Authority != AuthorityUser {
		t.Errorf("authority = %v, want %v", req.Authority, AuthorityUser)
	}
	if req.Timeout != DefaultRequestTimeout {
		t.Errorf("timeout = %v, want %v", req.Timeout, DefaultRequestTimeout)
	}
	if req.Timestamp == 0 {
		t.Error("timestamp not set")
	}
}

func TestRequestEncodeDecode(t *testing.T) {
	req := NewRequest("set_level", "lighting")
	req.Authority = AuthorityAdmin
	req.Timeout = 5 * time.Second
	if err := req.SetParams(map[string]int{"level": 80}); err != nil {
		t.Fatalf("SetParams() error = %v", err)
	}

	payload, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// Wire shape: authority travels as its numeric tier, the timeout in
	// milliseconds.
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(payload, &wire); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if string(wire["authority"]) != "0" {
		t.Errorf("authority on the wire = %s, want 0", wire["authority"])
	}
	if string(wire["timeout_ms"]) != "5000" {
		t.Errorf("timeout_ms on the wire = %s, want 5000", wire["timeout_ms"])
	}

	decoded, err := DecodeRequest(payload)
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	if decoded.TransactionID != req.TransactionID {
		t.Errorf("transaction ID = %q, want %q", decoded.TransactionID, req.TransactionID)
	}
	if decoded.Method != "set_level" || decoded.Service != "lighting" {
		t.Errorf("method/service = %q/%q", decoded.Method, decoded.Service)
	}
	if decoded.Authority != AuthorityAdmin {
		t.Errorf("authority = %v, want %v", decoded.Authority, AuthorityAdmin)
	}
	if decoded.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", decoded.Timeout)
	}

	var params map[string]int
	if err := json.Unmarshal(decoded.Params, &params); err != nil {
		t.Fatalf("params did not survive the round trip: %v", err)
	}
	if params["level"] != 80 {
		t.Errorf("params level = %d, want 80", params["level"])
	}
}

func TestDecodeRequestInvalidJSON(t *testing.T) {
	_, err := DecodeRequest([]byte("{not json"))
	if !errors.Is(err, ErrSerialization) {
		t.Errorf("error = %v, want ErrSerialization", err)
	}
}

func TestResponseEncodeDecode(t *testing.T) {
	resp := NewResponse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	resp.Success = true
	resp.ProcessingTime = 12
	resp.Result = json.RawMessage(`{"level":80}`)

	payload, err := resp.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := DecodeResponse(payload)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if decoded.TransactionID != resp.TransactionID {
		t.Errorf("transaction ID = %q, want %q", decoded.TransactionID, resp.TransactionID)
	}
	if !decoded.Success {
		t.Error("success flag lost")
	}
	if decoded.ProcessingTime != 12 {
		t.Errorf("processing time = %d, want 12", decoded.ProcessingTime)
	}

	var result struct {
		Level int `json:"level"`
	}
	if err := decoded.DecodeResult(&result); err != nil {
		t.Fatalf("DecodeResult() error = %v", err)
	}
	if result.Level != 80 {
		t.Errorf("result level = %d, want 80", result.Level)
	}
}

func TestErrorResponseShape(t *testing.T) {
	resp := errorResponse("tx-1", -1, "request timed out")

	if resp.Success {
		t.Error("error response marked successful")
	}
	if resp.ErrorCode != -1 {
		t.Errorf("error code = %d, want -1", resp.ErrorCode)
	}
	if resp.ErrorMessage != "request timed out" {
		t.Errorf("error message = %q", resp.ErrorMessage)
	}
	if resp.Timestamp == 0 {
		t.Error("timestamp not set")
	}
}

func TestSendNotificationEnvelope(t *testing.T) {
	env := notificationEnvelope{
		Type:      "notification",
		Method:    "level_changed",
		Service:   "lighting",
		Authority: AuthoritySystem.String(),
		Timestamp: timestampMS(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}

	var wire map[string]json.RawMessage
	if err := json.Unmarshal(payload, &wire); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	// Notifications carry the authority name, not the numeric tier, and a
	// numeric timestamp.
	if string(wire["authority"]) != `"system"` {
		t.Errorf("authority on the wire = %s, want \"system\"", wire["authority"])
	}
	if wire["timestamp"][0] == '"' {
		t.Errorf("timestamp should be numeric, got %s", wire["timestamp"])
	}
	if _, ok := wire["transaction_id"]; ok {
		t.Error("notification must not carry a transaction ID")
	}
}
