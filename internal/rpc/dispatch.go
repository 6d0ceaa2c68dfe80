package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"tbcv/internal/logging"
	"tbcv/internal/rpc/rpcctx"
)

// Request is the JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id"`
}

// Response is the JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id"`
}

// methodStats accumulates dispatch timings for the performance report.
type methodStats struct {
	Count    int64         `json:"count"`
	Errors   int64         `json:"errors"`
	Total    time.Duration `json:"-"`
	Max      time.Duration `json:"-"`
	TotalMS  float64       `json:"total_ms"`
	MaxMS    float64       `json:"max_ms"`
	AvgMS    float64       `json:"avg_ms"`
}

// Dispatcher validates envelopes and routes requests to the registry.
type Dispatcher struct {
	registry *Registry

	statsMu sync.Mutex
	stats   map[string]*methodStats
}

// NewDispatcher creates a dispatcher over the registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry, stats: make(map[string]*methodStats)}
}

// DispatchRaw parses one request line and returns the serialized response.
// Used by the stdio transport.
func (d *Dispatcher) DispatchRaw(ctx context.Context, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return marshalResponse(&Response{
			JSONRPC: "2.0",
			Error:   newError(CodeParse, "parse error: %v", err),
		})
	}
	return marshalResponse(d.Dispatch(ctx, &req))
}

// Dispatch executes one request. The request id is preserved in all
// responses, including errors.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	resp := &Response{JSONRPC: "2.0", ID: req.ID}

	if req.JSONRPC != "2.0" || req.Method == "" {
		resp.Error = newError(CodeInvalidRequest, "invalid request: jsonrpc must be \"2.0\" and method non-empty")
		return resp
	}

	method := d.registry.Get(req.Method)
	if method == nil {
		resp.Error = newError(CodeMethodNotFound, "method %q not found", req.Method)
		return resp
	}

	params, verr := method.Schema.Validate(req.Params)
	if verr != nil {
		resp.Error = verr
		return resp
	}

	start := time.Now()
	result, err := d.invoke(rpcctx.WithRPC(ctx, req.Method), method, params)
	d.record(req.Method, time.Since(start), err != nil)

	if err != nil {
		resp.Error = mapError(err)
		return resp
	}
	resp.Result = result
	return resp
}

// invoke runs the handler with panic containment. A panic is logged under a
// correlation id and surfaces as -32603 with a sanitized message.
func (d *Dispatcher) invoke(ctx context.Context, method *Method, params Params) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlation := uuid.NewString()
			logging.Get(logging.CategoryRPC).Error("Panic in %s [%s]: %v", method.Name, correlation, r)
			err = &Error{
				Code:    CodeInternal,
				Message: "internal error",
				Data:    map[string]any{"correlation_id": correlation},
			}
		}
	}()
	return method.Handler(ctx, params)
}

func (d *Dispatcher) record(method string, took time.Duration, failed bool) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	st, ok := d.stats[method]
	if !ok {
		st = &methodStats{}
		d.stats[method] = st
	}
	st.Count++
	if failed {
		st.Errors++
	}
	st.Total += took
	if took > st.Max {
		st.Max = took
	}
}

// Stats snapshots per-method dispatch timings.
func (d *Dispatcher) Stats() map[string]methodStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	out := make(map[string]methodStats, len(d.stats))
	for name, st := range d.stats {
		snap := *st
		snap.TotalMS = float64(snap.Total.Microseconds()) / 1000
		snap.MaxMS = float64(snap.Max.Microseconds()) / 1000
		if snap.Count > 0 {
			snap.AvgMS = snap.TotalMS / float64(snap.Count)
		}
		out[name] = snap
	}
	return out
}

func marshalResponse(resp *Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// The response itself failed to serialize; degrade to a bare error.
		fallback, _ := json.Marshal(&Response{
			JSONRPC: "2.0",
			ID:      resp.ID,
			Error:   newError(CodeInternal, "response serialization failed"),
		})
		return fallback
	}
	return data
}
