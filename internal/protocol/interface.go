package protocol

import (
	"context"

	"github.com/dg645-sim/internal/device"
)

// CommandHandler defines the interface for line command handlers
type CommandHandler interface {
	// Handle applies a matched command and returns the reply line, if any
	Handle(ctx context.Context, args Args) (string, error)

	// GetName returns the command name
	GetName() string

	// GetDescription returns a human-readable description
	GetDescription() string

	// IsQuery returns true if the command replies with one line
	IsQuery() bool

	// Template returns the pattern a line must match
	Template() *Template
}

// CommandRegistry keeps command handlers in match order
type CommandRegistry struct {
	handlers []CommandHandler
	byName   map[string]CommandHandler
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		byName: make(map[string]CommandHandler),
	}
}

// Register adds a command handler to the registry. A handler with the same
// name replaces the previous one in place.
func (r *CommandRegistry) Register(handler CommandHandler) {
	name := handler.GetName()
	if _, exists := r.byName[name]; exists {
		for i, h := range r.handlers {
			if h.GetName() == name {
				r.handlers[i] = handler
			}
		}
	} else {
		r.handlers = append(r.handlers, handler)
	}
	r.byName[name] = handler
}

// Get returns a command handler by name
func (r *CommandRegistry) Get(name string) (CommandHandler, bool) {
	handler, exists := r.byName[name]
	return handler, exists
}

// List returns all registered command names in match order
func (r *CommandRegistry) List() []string {
	names := make([]string, 0, len(r.handlers))
	for _, h := range r.handlers {
		names = append(names, h.GetName())
	}
	return names
}

// Match finds the first handler whose template fits the line. Not finding
// one is a normal outcome.
func (r *CommandRegistry) Match(line string) (CommandHandler, Args, bool) {
	for _, h := range r.handlers {
		if args, ok := h.Template().Match(line); ok {
			return h, args, true
		}
	}
	return nil, nil, false
}

// CommandFunc is the body of a line command
type CommandFunc func(ctx context.Context, dev *device.Device, args Args) (string, error)

// LineCommand is a CommandHandler built from a template and a function
type LineCommand struct {
	name        string
	description string
	query       bool
	template    *Template
	device      *device.Device
	fn          CommandFunc
}

// NewLineCommand creates a line command bound to a device
func NewLineCommand(name, description string, query bool, template *Template, dev *device.Device, fn CommandFunc) *LineCommand {
	return &LineCommand{
		name:        name,
		description: description,
		query:       query,
		template:    template,
		device:      dev,
		fn:          fn,
	}
}

func (c *LineCommand) Handle(ctx context.Context, args Args) (string, error) {
	return c.fn(ctx, c.device, args)
}

func (c *LineCommand) GetName() string {
	return c.name
}

func (c *LineCommand) GetDescription() string {
	return c.description
}

func (c *LineCommand) IsQuery() bool {
	return c.query
}

func (c *LineCommand) Template() *Template {
	return c.template
}

// CommandInfo provides information about a command
type CommandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Query       bool   `json:"query"`
	Pattern     string `json:"pattern"`
}
