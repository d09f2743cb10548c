package protocol

import (
	"context"
	"log"
	"strings"

	"github.com/dg645-sim/internal/device"
)

// Dispatcher maps protocol lines onto device operations. It keeps no state
// between lines; everything lives in the device.
type Dispatcher struct {
	registry *CommandRegistry
	device   *device.Device
	verbose  bool
}

// Reply is the outcome of one dispatched line
type Reply struct {
	Command string
	Line    string
	Send    bool // queries reply; set commands and unknown lines do not
	Err     error
}

// NewDispatcher creates a dispatcher with the full DG645 command set
func NewDispatcher(dev *device.Device, verbose bool) *Dispatcher {
	registry := NewCommandRegistry()

	// Register core commands
	RegisterCoreCommands(registry, dev)

	// Register queries needed by the IOC driver at boot
	RegisterCompatCommands(registry, dev)

	return &Dispatcher{
		registry: registry,
		device:   dev,
		verbose:  verbose,
	}
}

// Dispatch parses and applies one line. Lines that match no command are
// ignored. Device errors never fail the call; they end up on the error
// queue and in Reply.Err.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) Reply {
	line = strings.TrimRight(line, "\r\n")

	handler, args, ok := d.registry.Match(line)
	if !ok {
		if d.verbose {
			log.Printf("Ignoring unrecognised line: %q", line)
		}
		return Reply{}
	}

	out, err := handler.Handle(ctx, args)
	if err != nil {
		log.Printf("Command %s rejected: %v", handler.GetName(), err)
	} else if d.verbose {
		log.Printf("Command processed: name=%s, line=%q", handler.GetName(), line)
	}

	return Reply{
		Command: handler.GetName(),
		Line:    out,
		Send:    handler.IsQuery(),
		Err:     err,
	}
}

// AddCommand registers an extra command after the built-in ones
func (d *Dispatcher) AddCommand(handler CommandHandler) {
	d.registry.Register(handler)
}

// Commands returns information about every registered command
func (d *Dispatcher) Commands() []CommandInfo {
	names := d.registry.List()
	infos := make([]CommandInfo, 0, len(names))
	for _, name := range names {
		h, _ := d.registry.Get(name)
		infos = append(infos, CommandInfo{
			Name:        h.GetName(),
			Description: h.GetDescription(),
			Query:       h.IsQuery(),
			Pattern:     h.Template().String(),
		})
	}
	return infos
}
