package control

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/dg645-sim/internal/config"
	"github.com/dg645-sim/internal/device"
	"github.com/dg645-sim/internal/protocol"
	"github.com/dg645-sim/internal/snapshot"
)

// Path is the HTTP endpoint of the control API
const Path = "/control"

// Server handles JSON-RPC HTTP requests against the device
type Server struct {
	config   *config.Config
	registry *MethodRegistry
}

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  []string    `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// ErrorBody represents a JSON-RPC 2.0 error object
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewServer creates a new control server
func NewServer(cfg *config.Config, dev *device.Device, dispatcher *protocol.Dispatcher, store *snapshot.Store) *Server {
	registry := NewMethodRegistry()
	RegisterDeviceMethods(registry, dev, dispatcher, store)

	return &Server{
		config:   cfg,
		registry: registry,
	}
}

// Handler returns the HTTP handler serving the control API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.HandleRequest)
	return mux
}

// HandleRequest handles HTTP POST requests to the control endpoint
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	// Set response headers
	w.Header().Set("Content-Type", "application/json")
	if s.config.Network.Control.ServerHeader != "" {
		w.Header().Set("Server", s.config.Network.Control.ServerHeader)
	}

	// Only accept POST requests
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, codeInvalidRequest, "Invalid Request", nil)
		return
	}

	// Parse JSON-RPC request
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, codeParseError, "Parse error", nil)
		return
	}

	// Validate JSON-RPC version
	if req.JSONRPC != "2.0" {
		s.writeErrorResponse(w, codeInvalidRequest, "Invalid Request", req.ID)
		return
	}

	response := s.processRequest(r, &req)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode response: %v", err)
		return
	}

	log.Printf("Control request processed: method=%s, duration=%v", req.Method, time.Since(start))
}

// processRequest runs a request through the method registry
func (s *Server) processRequest(r *http.Request, req *Request) *Response {
	handler, exists := s.registry.Get(req.Method)
	if !exists {
		return &Response{
			JSONRPC: "2.0",
			Error:   &ErrorBody{Code: codeMethodNotFound, Message: "Method not found"},
			ID:      req.ID,
		}
	}

	result, err := handler.Handle(r.Context(), req.Params)
	if err != nil {
		if methodErr, ok := err.(*MethodError); ok {
			return &Response{
				JSONRPC: "2.0",
				Error:   &ErrorBody{Code: codeInvalidParams, Message: methodErr.Code + ": " + methodErr.Message},
				ID:      req.ID,
			}
		}

		log.Printf("Control method %s failed: %v", req.Method, err)
		return &Response{
			JSONRPC: "2.0",
			Error:   &ErrorBody{Code: codeInternalError, Message: ErrInternal},
			ID:      req.ID,
		}
	}

	return &Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	}
}

// writeErrorResponse writes an error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, code int, message string, id interface{}) {
	response := &Response{
		JSONRPC: "2.0",
		Error:   &ErrorBody{Code: code, Message: message},
		ID:      id,
	}

	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(response)
}

// Methods returns the registered method names
func (s *Server) Methods() []string {
	return s.registry.List()
}
