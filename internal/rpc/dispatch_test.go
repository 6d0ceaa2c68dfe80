package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func testDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	reg := NewRegistry()
	reg.mustRegister(&Method{
		Name:     "echo",
		Category: "test",
		Schema: Schema{
			Required: []Param{{Name: "message", Type: TypeString}},
			Optional: []Param{{Name: "repeat", Type: TypeInteger, Default: 1}},
		},
		Handler: func(ctx context.Context, p Params) (any, error) {
			out := ""
			for i := 0; i < p.Int("repeat"); i++ {
				out += p.String("message")
			}
			return map[string]any{"echo": out}, nil
		},
	})
	reg.mustRegister(&Method{
		Name:     "boom",
		Category: "test",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			panic("unexpected state")
		},
	})
	reg.mustRegister(&Method{
		Name:     "fail",
		Category: "test",
		Schema:   Schema{},
		Handler: func(ctx context.Context, p Params) (any, error) {
			return nil, errors.New("plain failure")
		},
	})
	return NewDispatcher(reg)
}

func TestDispatchPreservesID(t *testing.T) {
	d := testDispatcher(t)
	resp := d.Dispatch(context.Background(), &Request{
		JSONRPC: "2.0", Method: "echo", ID: float64(42),
		Params: map[string]any{"message": "hi"},
	})
	if resp.Error != nil {
		t.Fatalf("Dispatch() error = %v", resp.Error)
	}
	if resp.ID != float64(42) {
		t.Fatalf("response ID = %v, want 42", resp.ID)
	}
	result := resp.Result.(map[string]any)
	if result["echo"] != "hi" {
		t.Fatalf("result = %v", result)
	}
}

func TestDispatchInvalidEnvelope(t *testing.T) {
	d := testDispatcher(t)
	tests := []struct {
		name string
		req  *Request
	}{
		{"wrong version", &Request{JSONRPC: "1.0", Method: "echo", ID: 1}},
		{"empty method", &Request{JSONRPC: "2.0", ID: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.Dispatch(context.Background(), tt.req)
			if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
				t.Fatalf("error = %v, want %d", resp.Error, CodeInvalidRequest)
			}
			if resp.ID != tt.req.ID {
				t.Errorf("error response ID = %v, want %v", resp.ID, tt.req.ID)
			}
		})
	}
}

func TestDispatchMethodNotFound(t *testing.T) {
	d := testDispatcher(t)
	resp := d.Dispatch(context.Background(), &Request{JSONRPC: "2.0", Method: "nope", ID: 1})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("error = %v, want %d", resp.Error, CodeMethodNotFound)
	}
}

func TestDispatchMissingParam(t *testing.T) {
	d := testDispatcher(t)
	resp := d.Dispatch(context.Background(), &Request{JSONRPC: "2.0", Method: "echo", ID: 1})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("error = %v, want %d", resp.Error, CodeInvalidParams)
	}
	missing, _ := resp.Error.Data["missing"].([]string)
	if len(missing) != 1 || missing[0] != "message" {
		t.Fatalf("data.missing = %v, want [message]", resp.Error.Data["missing"])
	}
}

func TestDispatchInvalidParamType(t *testing.T) {
	d := testDispatcher(t)
	resp := d.Dispatch(context.Background(), &Request{
		JSONRPC: "2.0", Method: "echo", ID: 1,
		Params: map[string]any{"message": "hi", "repeat": "three"},
	})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("error = %v, want %d", resp.Error, CodeInvalidParams)
	}
	if resp.Error.Data["invalid"] == nil {
		t.Fatal("data.invalid missing")
	}
}

func TestDispatchAppliesDefaults(t *testing.T) {
	d := testDispatcher(t)
	resp := d.Dispatch(context.Background(), &Request{
		JSONRPC: "2.0", Method: "echo", ID: 1,
		Params: map[string]any{"message": "ab", "repeat": float64(2)},
	})
	if resp.Error != nil {
		t.Fatalf("Dispatch() error = %v", resp.Error)
	}
	if resp.Result.(map[string]any)["echo"] != "abab" {
		t.Fatalf("result = %v", resp.Result)
	}

	// Omitted optional falls back to its default.
	resp = d.Dispatch(context.Background(), &Request{
		JSONRPC: "2.0", Method: "echo", ID: 2,
		Params: map[string]any{"message": "x"},
	})
	if resp.Result.(map[string]any)["echo"] != "x" {
		t.Fatalf("default not applied: %v", resp.Result)
	}
}

func TestDispatchPanicBecomesInternalError(t *testing.T) {
	d := testDispatcher(t)
	resp := d.Dispatch(context.Background(), &Request{JSONRPC: "2.0", Method: "boom", ID: 7})
	if resp.Error == nil || resp.Error.Code != CodeInternal {
		t.Fatalf("error = %v, want %d", resp.Error, CodeInternal)
	}
	if resp.Error.Message != "internal error" {
		t.Errorf("panic detail leaked: %q", resp.Error.Message)
	}
	if id, _ := resp.Error.Data["correlation_id"].(string); id == "" {
		t.Error("correlation_id missing from panic response")
	}
	if resp.ID != 7 {
		t.Errorf("response ID = %v, want 7", resp.ID)
	}
}

func TestDispatchRawParseError(t *testing.T) {
	d := testDispatcher(t)
	raw := d.DispatchRaw(context.Background(), []byte("{not json"))

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParse {
		t.Fatalf("error = %v, want %d", resp.Error, CodeParse)
	}
}

func TestDispatchStats(t *testing.T) {
	d := testDispatcher(t)
	d.Dispatch(context.Background(), &Request{JSONRPC: "2.0", Method: "fail", ID: 1})
	d.Dispatch(context.Background(), &Request{JSONRPC: "2.0", Method: "echo", ID: 2,
		Params: map[string]any{"message": "hi"}})

	stats := d.Stats()
	if st := stats["fail"]; st.Count != 1 || st.Errors != 1 {
		t.Fatalf("fail stats = %+v, want count=1 errors=1", st)
	}
	if st := stats["echo"]; st.Count != 1 || st.Errors != 0 {
		t.Fatalf("echo stats = %+v, want count=1 errors=0", st)
	}
}

func TestRegistryDuplicateRejected(t *testing.T) {
	reg := NewRegistry()
	m := &Method{Name: "dup", Schema: Schema{}, Handler: func(ctx context.Context, p Params) (any, error) { return nil, nil }}
	if err := reg.Register(m); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(m); err == nil {
		t.Fatal("duplicate Register() succeeded")
	}
}
