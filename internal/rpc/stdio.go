package rpc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"tbcv/internal/logging"
)

// maxLineBytes bounds one request line. Content travels inline in
// validate_content, so the limit is generous.
const maxLineBytes = 16 * 1024 * 1024

// StdioTransport serves newline-delimited JSON-RPC over a reader/writer
// pair, one response line per request line. Diagnostics never touch the
// writer; they go to the structured log.
type StdioTransport struct {
	dispatcher *Dispatcher

	writeMu sync.Mutex
	out     io.Writer
}

// NewStdioTransport creates a transport over the dispatcher.
func NewStdioTransport(d *Dispatcher, out io.Writer) *StdioTransport {
	return &StdioTransport{dispatcher: d, out: out}
}

// Serve reads request lines until EOF or context cancellation. Requests are
// handled sequentially; ordering on the wire matches arrival order.
func (t *StdioTransport) Serve(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		resp := t.dispatcher.DispatchRaw(ctx, []byte(line))
		if err := t.write(resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requests: %w", err)
	}
	logging.RPC("Stdio transport closed on EOF")
	return nil
}

func (t *StdioTransport) write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.out.Write(data); err != nil {
		return err
	}
	_, err := t.out.Write([]byte{'\n'})
	return err
}

// Call dispatches one request in-process. Used by the CLI when it embeds the
// server instead of talking to a running process.
func Call(ctx context.Context, d *Dispatcher, method string, params map[string]any) *Response {
	return d.Dispatch(ctx, &Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
}
