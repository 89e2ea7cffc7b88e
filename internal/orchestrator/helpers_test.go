package orchestrator

import (
	"context"
	"sync"

	"socialpulse/backend/internal/gateway"
)

// nopLogger satisfies Logger for tests.
type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

// namedSession builds a bare session that already has its provider identifier.
func namedSession(username string) *Session {
	s := &Session{}
	s.SetUsername(username)
	return s
}

type invocation struct {
	Op    string
	Input map[string]any
}

// fakeInvoker satisfies gateway.Invoker with a scripted per-op handler and
// records every invocation in order.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   []invocation
	handler func(op string, input map[string]any) (map[string]any, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, op string, input map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, invocation{Op: op, Input: input})
	f.mu.Unlock()
	if f.handler == nil {
		return map[string]any{}, nil
	}
	return f.handler(op, input)
}

func (f *fakeInvoker) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Op
	}
	return out
}

func (f *fakeInvoker) countOp(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func transportErr(op string) error {
	return &gateway.RemoteError{Op: op, Class: gateway.ClassTransport, Message: "connection refused"}
}

func preconditionErr(op string) error {
	return &gateway.RemoteError{Op: op, Class: gateway.ClassPreconditionMissing, StatusCode: 404, Message: "profile not initialized"}
}

func rejectedErr(op string) error {
	return &gateway.RemoteError{Op: op, Class: gateway.ClassRejected, StatusCode: 429, Message: "monthly connection limit reached"}
}
