package control

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dg645-sim/internal/device"
	"github.com/dg645-sim/internal/protocol"
	"github.com/dg645-sim/internal/snapshot"
)

// DelayInfo describes one channel delay
type DelayInfo struct {
	Channel   string  `json:"channel"`
	Reference string  `json:"reference"`
	Magnitude float64 `json:"magnitude"`
}

// LineResult is the outcome of a protocol line sent through the control API
type LineResult struct {
	Command string `json:"command,omitempty"`
	Reply   string `json:"reply,omitempty"`
	Replied bool   `json:"replied"`
	Error   string `json:"error,omitempty"`
}

// RegisterDeviceMethods registers methods that inspect and drive the device.
// store may be nil when persistence is disabled.
func RegisterDeviceMethods(registry *MethodRegistry, dev *device.Device, dispatcher *protocol.Dispatcher, store *snapshot.Store) {
	registry.Register(NewMethodHandler("identification", "Get or set the *IDN? string", false,
		func(_ context.Context, params []string) (interface{}, error) {
			if len(params) > 1 {
				return nil, invalidParams("expected at most one parameter")
			}
			if len(params) == 1 {
				dev.SetIdentification(params[0])
			}
			return []string{dev.Identification()}, nil
		}))

	registry.Register(NewMethodHandler("delays", "Read every channel delay", true,
		func(_ context.Context, params []string) (interface{}, error) {
			if err := noParams(params); err != nil {
				return nil, err
			}
			all := dev.Delays()
			out := make([]DelayInfo, 0, len(all))
			for i, d := range all {
				out = append(out, DelayInfo{
					Channel:   device.Channel(i).String(),
					Reference: d.Reference.String(),
					Magnitude: d.Magnitude,
				})
			}
			return out, nil
		}))

	registry.Register(NewMethodHandler("widths", "Absolute delay of every channel from T0", true,
		func(_ context.Context, params []string) (interface{}, error) {
			if err := noParams(params); err != nil {
				return nil, err
			}
			return dev.Widths(), nil
		}))

	registry.Register(NewMethodHandler("pair_width", "Pulse width of an output pair, e.g. [\"A\",\"B\"]", true,
		func(_ context.Context, params []string) (interface{}, error) {
			if len(params) != 2 {
				return nil, invalidParams("expected two channel names")
			}
			lead, ok1 := device.ChannelByName(params[0])
			trail, ok2 := device.ChannelByName(params[1])
			if !ok1 || !ok2 {
				return nil, invalidParams(fmt.Sprintf("unknown channel in %v", params))
			}
			w, err := dev.PairWidth(lead, trail)
			if err != nil {
				return nil, &MethodError{Code: ErrInvalidParams, Message: err.Error()}
			}
			return []float64{w}, nil
		}))

	registry.Register(NewMethodHandler("error_queue", "Queued error codes, oldest first", true,
		func(_ context.Context, params []string) (interface{}, error) {
			if err := noParams(params); err != nil {
				return nil, err
			}
			return dev.Errors(), nil
		}))

	registry.Register(NewMethodHandler("add_error", "Push an error code onto the queue", false,
		func(_ context.Context, params []string) (interface{}, error) {
			if len(params) != 1 {
				return nil, invalidParams("expected one error code")
			}
			code, err := strconv.Atoi(params[0])
			if err != nil {
				return nil, invalidParams(fmt.Sprintf("bad error code %q", params[0]))
			}
			dev.ReportError(device.ErrorCode(code))
			return dev.Errors(), nil
		}))

	registry.Register(NewMethodHandler("clear_errors", "Empty the error queue", false,
		func(_ context.Context, params []string) (interface{}, error) {
			if err := noParams(params); err != nil {
				return nil, err
			}
			dev.ClearErrors()
			return []string{""}, nil
		}))

	registry.Register(NewMethodHandler("reset", "Reinitialize the device", false,
		func(_ context.Context, params []string) (interface{}, error) {
			if err := noParams(params); err != nil {
				return nil, err
			}
			dev.Reset()
			return []string{""}, nil
		}))

	registry.Register(NewMethodHandler("state", "Complete device state", true,
		func(_ context.Context, params []string) (interface{}, error) {
			if err := noParams(params); err != nil {
				return nil, err
			}
			return dev.Snapshot(), nil
		}))

	registry.Register(NewMethodHandler("line", "Run one protocol line", false,
		func(ctx context.Context, params []string) (interface{}, error) {
			if len(params) != 1 {
				return nil, invalidParams("expected one protocol line")
			}
			r := dispatcher.Dispatch(ctx, params[0])
			res := LineResult{Command: r.Command, Reply: r.Line, Replied: r.Send}
			if r.Err != nil {
				res.Error = r.Err.Error()
			}
			return res, nil
		}))

	registry.Register(NewMethodHandler("protocol_commands", "Line commands understood by the device", true,
		func(_ context.Context, params []string) (interface{}, error) {
			return dispatcher.Commands(), nil
		}))

	registry.Register(NewMethodHandler("save_snapshot", "Persist the device state", false,
		func(_ context.Context, params []string) (interface{}, error) {
			if store == nil {
				return nil, &MethodError{Code: ErrUnavailable, Message: "snapshot persistence disabled"}
			}
			if err := store.Save(dev.Snapshot()); err != nil {
				return nil, err
			}
			return []string{store.Path()}, nil
		}))

	registry.Register(NewMethodHandler("load_snapshot", "Restore the persisted device state", false,
		func(_ context.Context, params []string) (interface{}, error) {
			if store == nil {
				return nil, &MethodError{Code: ErrUnavailable, Message: "snapshot persistence disabled"}
			}
			state, err := store.Load()
			if err == snapshot.ErrNoSnapshot {
				return nil, &MethodError{Code: ErrUnavailable, Message: err.Error()}
			}
			if err != nil {
				return nil, err
			}
			dev.Restore(state)
			return []string{store.Path()}, nil
		}))

	registry.Register(NewMethodHandler("methods", "Control methods with description and read-only flag", true,
		func(_ context.Context, params []string) (interface{}, error) {
			return registry.Describe(), nil
		}))
}

func noParams(params []string) error {
	if len(params) > 0 {
		return invalidParams("this method does not accept parameters")
	}
	return nil
}

func invalidParams(msg string) error {
	return &MethodError{Code: ErrInvalidParams, Message: msg}
}
