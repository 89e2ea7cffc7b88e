// Package gateway is the single narrow interface through which the
// orchestrator invokes named remote operations on the provider platform.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Invoker invokes a named remote operation with a JSON input and returns the
// JSON output or a typed failure. Implementations never retry; retry policy
// is the caller's responsibility.
type Invoker interface {
	Invoke(ctx context.Context, op string, input map[string]any) (map[string]any, error)
}

// envelope is the provider's uniform response shape.
type envelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// HTTPGateway is an HTTP implementation of the Invoker interface. Operations
// are POSTed to {base}/functions/{op}.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGateway creates a new HTTPGateway. A non-empty token is attached to
// every request via an oauth2 static token source.
func NewHTTPGateway(baseURL, token string, timeout time.Duration) *HTTPGateway {
	client := &http.Client{Timeout: timeout}
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = oauth2.NewClient(context.Background(), src)
		client.Timeout = timeout
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Invoke performs one remote call and classifies any failure. It holds no
// local state beyond the HTTP client.
func (g *HTTPGateway) Invoke(ctx context.Context, op string, input map[string]any) (map[string]any, error) {
	if input == nil {
		input = map[string]any{}
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, &RemoteError{Op: op, Class: ClassUnknown, Message: fmt.Sprintf("marshal input: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/functions/"+op, bytes.NewBuffer(body))
	if err != nil {
		return nil, &RemoteError{Op: op, Class: ClassUnknown, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: op, Class: ClassTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if class, ok := classifyStatus(resp.StatusCode); ok {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &RemoteError{Op: op, Class: class, StatusCode: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return nil, &RemoteError{Op: op, Class: ClassUnknown, StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", decodeErr)}
	}

	if !env.Success {
		class := ClassUnknown
		// Some provider functions only report quota exhaustion through the
		// error message, without a distinguishing status code.
		if isLimitMessage(env.Error) {
			class = ClassRejected
		}
		return nil, &RemoteError{Op: op, Class: class, StatusCode: resp.StatusCode, Message: env.Error}
	}

	if env.Data == nil {
		return map[string]any{}, nil
	}
	return env.Data, nil
}

// classifyStatus maps an HTTP status to an error class. 2xx statuses are not
// errors and return ok=false.
func classifyStatus(status int) (Class, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return ClassPreconditionMissing, true
	case status == http.StatusPaymentRequired || status == http.StatusTooManyRequests:
		return ClassRejected, true
	case status >= 500:
		return ClassTransport, true
	default:
		return ClassUnknown, true
	}
}

func isLimitMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "limit") || strings.Contains(m, "quota")
}
