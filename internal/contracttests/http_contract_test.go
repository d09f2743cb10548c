package contracttests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dg645-sim/internal/config"
	"github.com/dg645-sim/internal/control"
	"github.com/dg645-sim/internal/device"
	"github.com/dg645-sim/internal/protocol"
)

// TestHTTPServer wraps the control API for contract testing
type TestHTTPServer struct {
	server *httptest.Server
	device *device.Device
}

// NewTestHTTPServer starts the control API on a loopback port
func NewTestHTTPServer(t *testing.T) *TestHTTPServer {
	cfg := config.Default()
	dev := device.NewDevice(cfg)
	controlServer := control.NewServer(cfg, dev, protocol.NewDispatcher(dev, false), nil)

	ts := &TestHTTPServer{
		server: httptest.NewServer(controlServer.Handler()),
		device: dev,
	}
	t.Cleanup(ts.server.Close)
	return ts
}

// Post sends a raw body to path and returns status and body
func (ts *TestHTTPServer) Post(t *testing.T, path, body string) (int, []byte) {
	resp, err := http.Post(ts.server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return resp.StatusCode, data
}

// Call sends a JSON-RPC request to the control endpoint
func (ts *TestHTTPServer) Call(t *testing.T, method string, params ...string) []byte {
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      "contract",
	})
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	_, data := ts.Post(t, control.Path, string(body))
	return data
}

func TestHTTPEnvelopeCompliance(t *testing.T) {
	ts := NewTestHTTPServer(t)

	methods := []string{"identification", "delays", "widths", "error_queue", "state", "methods", "protocol_commands", "fire_laser"}
	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			data := ts.Call(t, method)
			if err := ValidateEnvelope(bytes.TrimSpace(data)); err != nil {
				t.Errorf("Envelope for %s invalid: %v (%s)", method, err, data)
			}
		})
	}
}

func TestHTTPMethodPOSTOnly(t *testing.T) {
	ts := NewTestHTTPServer(t)

	resp, err := http.Get(ts.server.URL + control.Path)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for GET, got %d", resp.StatusCode)
	}
}

func TestHTTPPathExactMatch(t *testing.T) {
	ts := NewTestHTTPServer(t)

	status, _ := ts.Post(t, control.Path+"/extra", `{"jsonrpc":"2.0","method":"delays","id":1}`)
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", status)
	}
}

func TestHTTPErrorHandling(t *testing.T) {
	ts := NewTestHTTPServer(t)

	tests := []struct {
		name string
		body string
		code float64
	}{
		{"parse_error", `{"jsonrpc":`, -32700},
		{"wrong_version", `{"jsonrpc":"1.0","method":"delays","id":1}`, -32600},
		{"unknown_method", `{"jsonrpc":"2.0","method":"nope","id":1}`, -32601},
		{"bad_params", `{"jsonrpc":"2.0","method":"add_error","params":["x"],"id":1}`, -32602},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, data := ts.Post(t, control.Path, tt.body)

			var envelope JSONRPCEnvelope
			if err := json.Unmarshal(data, &envelope); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			if err := ValidateErrorResponse(envelope.Error); err != nil {
				t.Fatalf("Invalid error object: %v", err)
			}

			var errObj map[string]interface{}
			json.Unmarshal(envelope.Error, &errObj)
			if errObj["code"] != tt.code {
				t.Errorf("Expected code %v, got %v", tt.code, errObj["code"])
			}
		})
	}
}

func TestHTTPLineMatchesTCP(t *testing.T) {
	ts := NewTestHTTPServer(t)

	ts.Call(t, "line", "DLAY 3,2,2.5e-9")

	var envelope JSONRPCEnvelope
	if err := json.Unmarshal(ts.Call(t, "line", "DLAY? 3"), &envelope); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	var result struct {
		Reply   string `json:"reply"`
		Replied bool   `json:"replied"`
	}
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		t.Fatalf("Failed to unmarshal result: %v", err)
	}
	if !result.Replied || result.Reply != "2,0.000000002500" {
		t.Errorf("Unexpected reply %+v", result)
	}
	if err := ValidateDelayReply(result.Reply); err != nil {
		t.Error(err)
	}
}
