package control

import (
	"context"
	"sort"
)

// MethodHandler defines the interface for control API methods
type MethodHandler interface {
	// Handle processes a call and returns the result
	Handle(ctx context.Context, params []string) (interface{}, error)

	// GetName returns the method name
	GetName() string

	// GetDescription returns a human-readable description
	GetDescription() string

	// IsReadOnly returns true if the method only reads device state
	IsReadOnly() bool
}

// MethodRegistry manages available methods
type MethodRegistry struct {
	handlers map[string]MethodHandler
}

// NewMethodRegistry creates a new method registry
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{
		handlers: make(map[string]MethodHandler),
	}
}

// Register adds a method handler to the registry
func (r *MethodRegistry) Register(handler MethodHandler) {
	r.handlers[handler.GetName()] = handler
}

// Get returns a method handler by name
func (r *MethodRegistry) Get(name string) (MethodHandler, bool) {
	handler, exists := r.handlers[name]
	return handler, exists
}

// List returns all registered method names, sorted
func (r *MethodRegistry) List() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MethodInfo describes a registered method
type MethodInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ReadOnly    bool   `json:"read_only"`
}

// Describe returns information about every method, sorted by name
func (r *MethodRegistry) Describe() []MethodInfo {
	names := r.List()
	infos := make([]MethodInfo, 0, len(names))
	for _, name := range names {
		h := r.handlers[name]
		infos = append(infos, MethodInfo{
			Name:        h.GetName(),
			Description: h.GetDescription(),
			ReadOnly:    h.IsReadOnly(),
		})
	}
	return infos
}

// MethodError is returned by handlers for bad calls
type MethodError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *MethodError) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrInvalidParams = "INVALID_PARAMS"
	ErrUnavailable   = "UNAVAILABLE"
	ErrInternal      = "INTERNAL"
)

// JSON-RPC 2.0 error codes
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// funcHandler is a MethodHandler built from a function
type funcHandler struct {
	name        string
	description string
	readOnly    bool
	fn          func(ctx context.Context, params []string) (interface{}, error)
}

// NewMethodHandler creates a method handler from a function
func NewMethodHandler(name, description string, readOnly bool, fn func(ctx context.Context, params []string) (interface{}, error)) MethodHandler {
	return &funcHandler{
		name:        name,
		description: description,
		readOnly:    readOnly,
		fn:          fn,
	}
}

func (h *funcHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	return h.fn(ctx, params)
}

func (h *funcHandler) GetName() string {
	return h.name
}

func (h *funcHandler) GetDescription() string {
	return h.description
}

func (h *funcHandler) IsReadOnly() bool {
	return h.readOnly
}
