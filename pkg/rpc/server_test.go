package rpc

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestResponder(t *testing.T) *Responder {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	client, err := New(cfg, DefaultTopicConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return NewResponder(client, 2)
}

func decodeServerResponse(t *testing.T, payload []byte) jsonrpcResponse {
	t.Helper()
	var resp jsonrpcResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	return resp
}

func TestResponderProcess(t *testing.T) {
	r := newTestResponder(t)
	r.Handle("echo", func(params json.RawMessage) (string, error) {
		return string(params), nil
	})
	r.Handle("greet", func(params json.RawMessage) (string, error) {
		return "hello", nil
	})
	r.Handle("quiet", func(params json.RawMessage) (string, error) {
		return "", nil
	})
	r.Handle("fail", func(params json.RawMessage) (string, error) {
		return "", errors.New("device offline")
	})

	t.Run("object result embedded as object", func(t *testing.T) {
		out := r.Process([]byte(`{"jsonrpc":"2.0","id":"1","method":"echo","params":{"a":1}}`))
		resp := decodeServerResponse(t, out)
		obj, ok := resp.Result.(map[string]any)
		if !ok {
			t.Fatalf("result = %T, want object", resp.Result)
		}
		if obj["a"] != float64(1) {
			t.Errorf("result object = %v", obj)
		}
	})

	t.Run("plain string result", func(t *testing.T) {
		out := r.Process([]byte(`{"jsonrpc":"2.0","id":"2","method":"greet","params":{}}`))
		resp := decodeServerResponse(t, out)
		if resp.Result != "hello" {
			t.Errorf("result = %v, want hello", resp.Result)
		}
		if resp.ID != "2" {
			t.Errorf("id = %q, want 2", resp.ID)
		}
	})

	t.Run("empty result becomes stock message", func(t *testing.T) {
		out := r.Process([]byte(`{"jsonrpc":"2.0","id":"3","method":"quiet","params":{}}`))
		resp := decodeServerResponse(t, out)
		if resp.Result != defaultResultMessage {
			t.Errorf("result = %v, want %q", resp.Result, defaultResultMessage)
		}
	})

	t.Run("handler error becomes response error", func(t *testing.T) {
		out := r.Process([]byte(`{"jsonrpc":"2.0","id":"4","method":"fail","params":{}}`))
		resp := decodeServerResponse(t, out)
		if resp.Error == nil {
			t.Fatal("expected an error in the response")
		}
		if resp.Error.Code != -1 || resp.Error.Message != "device offline" {
			t.Errorf("error = %+v", resp.Error)
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		out := r.Process([]byte(`{"jsonrpc":"2.0","id":"5","method":"nope","params":{}}`))
		resp := decodeServerResponse(t, out)
		if resp.Error == nil || !strings.Contains(resp.Error.Message, "Method not found") {
			t.Errorf("error = %+v, want method-not-found", resp.Error)
		}
	})

	t.Run("missing method field", func(t *testing.T) {
		out := r.Process([]byte(`{"jsonrpc":"2.0","id":"6","params":{}}`))
		resp := decodeServerResponse(t, out)
		if resp.Error == nil || resp.Error.Message != "Missing method field" {
			t.Errorf("error = %+v", resp.Error)
		}
	})

	t.Run("missing params field", func(t *testing.T) {
		out := r.Process([]byte(`{"jsonrpc":"2.0","id":"7","method":"echo"}`))
		resp := decodeServerResponse(t, out)
		if resp.Error == nil || resp.Error.Message != "Missing params field" {
			t.Errorf("error = %+v", resp.Error)
		}
	})

	t.Run("wrong protocol version dropped silently", func(t *testing.T) {
		if out := r.Process([]byte(`{"jsonrpc":"1.0","id":"8","method":"echo","params":{}}`)); out != nil {
			t.Errorf("expected silent drop, got %s", out)
		}
	})

	t.Run("unparseable payload dropped silently", func(t *testing.T) {
		if out := r.Process([]byte(`{broken`)); out != nil {
			t.Errorf("expected silent drop, got %s", out)
		}
	})

	t.Run("oversized payload rejected", func(t *testing.T) {
		big := make([]byte, maxRequestSize+1)
		out := r.Process(big)
		resp := decodeServerResponse(t, out)
		if resp.Error == nil || resp.Error.Message != "Request too large" {
			t.Errorf("error = %+v", resp.Error)
		}
		if resp.ID != "unknown" {
			t.Errorf("id = %q, want unknown", resp.ID)
		}
	})
}

func TestResponderIDExtraction(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string id", `"abc"`, "abc"},
		{"integer id", `42`, "42"},
		{"float id", `1.5`, "1.5"},
		{"missing id", ``, "unknown"},
		{"object id", `{"x":1}`, "unknown"},
		{"null id", `null`, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw json.RawMessage
			if tt.raw != "" {
				raw = json.RawMessage(tt.raw)
			}
			if got := extractID(raw); got != tt.want {
				t.Errorf("extractID(%s) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestResponderShutdown(t *testing.T) {
	r := newTestResponder(t)
	r.Handle("echo", func(params json.RawMessage) (string, error) {
		return string(params), nil
	})
	r.Close()

	out := r.Process([]byte(`{"jsonrpc":"2.0","id":"1","method":"echo","params":{}}`))
	resp := decodeServerResponse(t, out)
	if resp.Error == nil || resp.Error.Message != "Server is shutting down" {
		t.Errorf("error = %+v, want shutting-down", resp.Error)
	}
}

func TestResponderDispatchInlineFallback(t *testing.T) {
	r := newTestResponder(t)
	r.Handle("echo", func(params json.RawMessage) (string, error) {
		return string(params), nil
	})

	// Saturate the pool so Dispatch must process inline; the reply must
	// still arrive before Dispatch returns on the fallback path.
	r.workers <- struct{}{}
	r.workers <- struct{}{}

	replied := false
	r.Dispatch([]byte(`{"jsonrpc":"2.0","id":"1","method":"echo","params":{}}`), func(out []byte) {
		replied = true
	})
	if !replied {
		t.Error("inline fallback did not reply synchronously")
	}
}
