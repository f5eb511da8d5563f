package rpc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

const (
	// protocolVersion is the only accepted jsonrpc version marker.
	protocolVersion = "2.0"

	// maxRequestSize caps an inbound request payload at 1 MiB.
	maxRequestSize = 1 << 20

	// defaultWorkers is the request worker pool size.
	defaultWorkers = 4

	// defaultResultMessage stands in when a handler succeeds with no body.
	defaultResultMessage = "Operation completed successfully"
)

// Handler processes one request's params and returns the result body. A
// returned string that parses as a JSON object is embedded as that object;
// any other string is embedded verbatim. Errors become a response error
// with code -1.
type Handler func(params json.RawMessage) (string, error)

// jsonrpcRequest is the inbound server-side envelope.
type jsonrpcRequest struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonrpcResponse struct {
	Version string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonrpcError `json:"error,omitempty"`
}

// Responder answers requests arriving over a Client's subscription. Handlers
// are dispatched on a bounded worker pool; when every worker is busy the
// request is processed inline on the delivering goroutine instead of being
// queued or dropped.
type Responder struct {
	client *Client

	mu           sync.RWMutex
	handlers     map[string]Handler
	shuttingDown bool

	workers chan struct{}
	wg      sync.WaitGroup
}

// NewResponder creates a responder bound to client. workers <= 0 selects the
// default pool size.
func NewResponder(client *Client, workers int) *Responder {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Responder{
		client:   client,
		handlers: make(map[string]Handler),
		workers:  make(chan struct{}, workers),
	}
}

// Handle registers the handler for a method, replacing any previous one.
func (r *Responder) Handle(method string, handler Handler) {
	r.mu.Lock()
	r.handlers[method] = handler
	r.mu.Unlock()
}

// Serve subscribes to requestTopic and answers each request on
// responseTopic. It claims the client's message handler slot; messages on
// other topics are ignored while serving.
func (r *Responder) Serve(requestTopic, responseTopic string) error {
	if requestTopic == "" || responseTopic == "" {
		return fmt.Errorf("%w: request and response topics are required", ErrInvalidParam)
	}

	r.client.SetMessageHandler(func(topic string, payload []byte) {
		if topic != requestTopic {
			return
		}
		r.Dispatch(payload, func(out []byte) {
			if err := r.client.Publish(responseTopic, out); err != nil {
				r.client.logf().Error("response publish failed", "error", err)
			}
		})
	})

	return r.client.Subscribe(requestTopic)
}

// Dispatch processes one payload on the worker pool, falling back to inline
// processing when the pool is saturated. reply is invoked with the encoded
// response, or not at all for silently dropped payloads.
func (r *Responder) Dispatch(payload []byte, reply func([]byte)) {
	select {
	case r.workers <- struct{}{}:
		r.wg.Add(1)
		go func() {
			defer func() {
				<-r.workers
				r.wg.Done()
			}()
			if out := r.Process(payload); out != nil {
				reply(out)
			}
		}()
	default:
		if out := r.Process(payload); out != nil {
			reply(out)
		}
	}
}

// Process validates and executes one request, returning the encoded
// response. A nil return means the payload was dropped without an answer:
// either it is not a request for this protocol version, or it is
// unparseable beyond the point where an ID could be recovered.
func (r *Responder) Process(payload []byte) []byte {
	if len(payload) > maxRequestSize {
		return encodeError("unknown", -1, "Request too large")
	}

	var req jsonrpcRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil
	}
	if req.Version != protocolVersion {
		// Not ours. Responses and notifications share topics with requests
		// in some deployments, so anything without the version marker is
		// dropped without an error reply.
		return nil
	}

	id := extractID(req.ID)
	if req.Method == "" {
		return encodeError(id, -1, "Missing method field")
	}
	if len(req.Params) == 0 {
		return encodeError(id, -1, "Missing params field")
	}

	r.mu.RLock()
	handler, ok := r.handlers[req.Method]
	shuttingDown := r.shuttingDown
	r.mu.RUnlock()

	if shuttingDown {
		return encodeError(id, -1, "Server is shutting down")
	}
	if !ok {
		return encodeError(id, -1, "Method not found: "+req.Method)
	}

	body, err := handler(req.Params)
	if err != nil {
		return encodeError(id, -1, err.Error())
	}
	return encodeResult(id, body)
}

// Close stops accepting new requests and waits for in-flight handlers.
// Requests arriving after Close begins receive a shutting-down error.
func (r *Responder) Close() {
	r.mu.Lock()
	r.shuttingDown = true
	r.mu.Unlock()
	r.wg.Wait()
}

// extractID normalises the request ID: strings pass through, numbers become
// their decimal text, and anything else (missing included) is "unknown".
func extractID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "unknown"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return "unknown"
}

// encodeResult shapes a handler's string result: a parseable JSON object is
// embedded as an object, anything else as a string, and an empty result
// becomes the stock success message.
func encodeResult(id, body string) []byte {
	resp := jsonrpcResponse{Version: protocolVersion, ID: id}

	switch {
	case body == "":
		resp.Result = defaultResultMessage
	case len(body) > 0 && body[0] == '{':
		var obj map[string]any
		if err := json.Unmarshal([]byte(body), &obj); err == nil {
			resp.Result = obj
		} else {
			resp.Result = body
		}
	default:
		resp.Result = body
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return encodeError(id, -1, "Failed to encode result")
	}
	return out
}

func encodeError(id string, code int, message string) []byte {
	resp := jsonrpcResponse{
		Version: protocolVersion,
		ID:      id,
		Error:   &jsonrpcError{Code: code, Message: message},
	}
	out, _ := json.Marshal(resp)
	return out
}
