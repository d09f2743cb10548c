package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dg645-sim/internal/config"
	"github.com/dg645-sim/internal/device"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *device.Device) {
	t.Helper()
	dev := device.NewDevice(config.Default())
	return NewDispatcher(dev, false), dev
}

// query dispatches a line that must produce a reply
func query(t *testing.T, d *Dispatcher, line string) string {
	t.Helper()
	r := d.Dispatch(context.Background(), line)
	require.True(t, r.Send, "expected a reply to %q", line)
	return r.Line
}

// command dispatches a line that must stay silent
func command(t *testing.T, d *Dispatcher, line string) Reply {
	t.Helper()
	r := d.Dispatch(context.Background(), line)
	require.False(t, r.Send, "expected no reply to %q", line)
	return r
}

func TestDispatchIdent(t *testing.T) {
	d, _ := newTestDispatcher(t)
	assert.Equal(t, "SRS DG645,s/n001332,ver1.07.10E", query(t, d, "*IDN?"))
}

func TestDispatchDelayRoundTrip(t *testing.T) {
	d, _ := newTestDispatcher(t)

	assert.Equal(t, "0,0.000000000000", query(t, d, "DLAY? 2"))

	r := command(t, d, "DLAY 2,0,1e-6")
	assert.NoError(t, r.Err)
	assert.Equal(t, "set_delay", r.Command)
	assert.Equal(t, "0,0.000001000000", query(t, d, "DLAY? 2"))

	command(t, d, "DLAY 4,7,0.022")
	assert.Equal(t, "7,0.022000000000", query(t, d, "DLAY? 4"))

	command(t, d, "DLAY 7,0,4.324155e-6")
	assert.Equal(t, "0,0.000004324155", query(t, d, "DLAY? 7"))

	command(t, d, "DLAY 6,0,13e-12")
	assert.Equal(t, "0,0.000000000015", query(t, d, "DLAY? 6"))
}

func TestDispatchIllegalLink(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"self reference", "DLAY 2,2,1e-6"},
		{"modify T0", "DLAY 0,2,1e-6"},
		{"modify T1", "DLAY 1,0,1e-6"},
		{"reference T1", "DLAY 3,1,1e-6"},
		{"self reference with negative amount", "DLAY 2,2,-1e-6"},
		{"modify T0 with bad amount", "DLAY 0,0,abc"},
		{"modify T1 without amount", "DLAY 1,0,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, dev := newTestDispatcher(t)
			command(t, d, "DLAY 2,0,1e-6")
			before := dev.Delays()

			r := command(t, d, tt.line)
			assert.True(t, errors.Is(r.Err, device.ErrIllegalLink))
			assert.Equal(t, before, dev.Delays())
			assert.Equal(t, "13", query(t, d, "LERR?"))
			assert.Equal(t, "0", query(t, d, "LERR?"))
		})
	}
}

func TestDispatchEndToEndLinkError(t *testing.T) {
	d, dev := newTestDispatcher(t)

	command(t, d, "DLAY 2,0,0.000001")
	assert.Equal(t, "0,0.000001000000", query(t, d, "DLAY? 2"))

	command(t, d, "DLAY 2,2,0.000001")
	assert.Equal(t, "0,0.000001000000", query(t, d, "DLAY? 2"))
	assert.Equal(t, []device.ErrorCode{device.CodeIllegalLink}, dev.Errors())
}

func TestDispatchT1Width(t *testing.T) {
	d, _ := newTestDispatcher(t)

	command(t, d, "DLAY 2,0,0.000001")
	command(t, d, "DLAY 7,0,0.022")
	assert.Equal(t, "0,0.022000000000", query(t, d, "DLAY? 1"))
	assert.Equal(t, "0,0.000000000000", query(t, d, "DLAY? 0"))
}

func TestDispatchTriggerSource(t *testing.T) {
	d, _ := newTestDispatcher(t)

	for _, src := range []string{"0", "3", "6"} {
		command(t, d, "TSRC "+src)
		assert.Equal(t, src, query(t, d, "TSRC?"))
	}
	assert.Equal(t, "0", query(t, d, "LERR?"))

	r := command(t, d, "TSRC 7")
	assert.True(t, errors.Is(r.Err, device.ErrIllegalValue))
	assert.Equal(t, "7", query(t, d, "TSRC?"))
	assert.Equal(t, "10", query(t, d, "LERR?"))
}

func TestDispatchLevels(t *testing.T) {
	d, _ := newTestDispatcher(t)

	command(t, d, "LAMP 2,4")
	command(t, d, "LOFF 2,0")
	command(t, d, "LAMP 4,0.8")
	command(t, d, "LOFF 4,-0.8")
	command(t, d, "LPOL 6,1")

	assert.Equal(t, "4", query(t, d, "LAMP? 2"))
	assert.Equal(t, "0", query(t, d, "LOFF? 2"))
	assert.Equal(t, "0.8", query(t, d, "LAMP? 4"))
	assert.Equal(t, "-0.8", query(t, d, "LOFF? 4"))
	assert.Equal(t, "1", query(t, d, "LPOL? 6"))
	assert.Equal(t, "0", query(t, d, "LPOL? 5"))
	assert.Equal(t, "0", query(t, d, "LERR?"))
}

func TestDispatchTriggerLevel(t *testing.T) {
	d, _ := newTestDispatcher(t)

	assert.Equal(t, "0", query(t, d, "TLVL?"))
	for _, v := range []string{"0.5", "1.25", "4.52", "1.12", "0.53"} {
		command(t, d, "TLVL "+v)
		assert.Equal(t, v, query(t, d, "TLVL?"))
	}
}

func TestDispatchErrorQueue(t *testing.T) {
	d, _ := newTestDispatcher(t)

	command(t, d, "DLAY 2,2,1e-6")
	command(t, d, "TSRC 9")
	command(t, d, "DLAY 3,1,1e-6")

	assert.Equal(t, "13", query(t, d, "LERR?"))
	assert.Equal(t, "10", query(t, d, "LERR?"))

	command(t, d, "*CLS")
	assert.Equal(t, "0", query(t, d, "LERR?"))
}

func TestDispatchErrorQueueOverflow(t *testing.T) {
	d, dev := newTestDispatcher(t)

	for i := 0; i < 25; i++ {
		command(t, d, "TSRC 8")
	}
	command(t, d, "DLAY 2,2,1e-6")

	errs := dev.Errors()
	require.Len(t, errs, 20)
	assert.Equal(t, device.CodeIllegalLink, errs[19])
	for i := 0; i < 19; i++ {
		assert.Equal(t, "10", query(t, d, "LERR?"))
	}
	assert.Equal(t, "13", query(t, d, "LERR?"))
	assert.Equal(t, "0", query(t, d, "LERR?"))
}

func TestDispatchBadFields(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		query bool
		reply string
	}{
		{"delay query channel out of range", "DLAY? 12", true, "0,0.000000000000"},
		{"delay set channel out of range", "DLAY 10,0,1e-6", false, ""},
		{"delay reference out of range", "DLAY 2,11,1e-6", false, ""},
		{"delay amount not a number", "DLAY 2,0,fast", false, ""},
		{"delay amount missing", "DLAY 2,0,", false, ""},
		{"delay amount negative", "DLAY 2,0,-1e-6", false, ""},
		{"delay amount infinite", "DLAY 2,0,inf", false, ""},
		{"level query out of range", "LAMP? 10", true, "0"},
		{"level value not a number", "LOFF 2,high", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, dev := newTestDispatcher(t)
			before := dev.Snapshot()

			r := d.Dispatch(context.Background(), tt.line)
			assert.Equal(t, tt.query, r.Send)
			assert.Equal(t, tt.reply, r.Line)
			assert.True(t, errors.Is(r.Err, device.ErrIllegalValue))

			after := dev.Snapshot()
			assert.Equal(t, before.Delays, after.Delays)
			assert.Equal(t, before.LevelOffset, after.LevelOffset)
			assert.Equal(t, []device.ErrorCode{device.CodeIllegalValue}, after.Errors)
		})
	}
}

func TestDispatchUnrecognisedLines(t *testing.T) {
	d, dev := newTestDispatcher(t)

	for _, line := range []string{"", "HELLO", "DLAY?", "DLAY? x", "TSRC? 1", "TLVL abc", "*IDN? extra"} {
		r := d.Dispatch(context.Background(), line)
		assert.False(t, r.Send, "line %q", line)
		assert.Empty(t, r.Command, "line %q", line)
		assert.NoError(t, r.Err)
	}
	assert.Empty(t, dev.Errors())
}

func TestDispatchSilentCommands(t *testing.T) {
	d, dev := newTestDispatcher(t)
	before := dev.Snapshot()

	for _, line := range []string{"LCAL", "REMT", "*SAV 1", "*RCL 2"} {
		r := command(t, d, line)
		assert.NotEmpty(t, r.Command, "line %q", line)
		assert.NoError(t, r.Err)
	}
	assert.Equal(t, before, dev.Snapshot())
}

func TestDispatchCompatQueries(t *testing.T) {
	d, dev := newTestDispatcher(t)
	before := dev.Snapshot()

	lines := []string{
		"PRES? 1", "PHAS? 2", "IFCF? 0", "SSDL? 3",
		"TRAT?", "ADVT?", "INHB?", "EMAC?",
		"BURC?", "BURD?", "BURM?", "BURP?", "BURT?", "HOLD?",
	}
	for _, line := range lines {
		assert.Equal(t, "0", query(t, d, line), "line %q", line)
	}
	assert.Equal(t, before, dev.Snapshot())
}

func TestDispatchStripsTerminators(t *testing.T) {
	d, _ := newTestDispatcher(t)
	assert.Equal(t, "0", query(t, d, "TSRC?\r\n"))
}

func TestDispatcherCommands(t *testing.T) {
	d, _ := newTestDispatcher(t)

	infos := d.Commands()
	names := make(map[string]CommandInfo, len(infos))
	for _, info := range infos {
		names[info.Name] = info
	}

	require.Contains(t, names, "get_delay")
	assert.True(t, names["get_delay"].Query)
	assert.False(t, names["set_delay"].Query)
	assert.Contains(t, names, "get_holdoff")
	assert.Len(t, infos, 33)
}

func TestDispatcherAddCommand(t *testing.T) {
	d, dev := newTestDispatcher(t)

	d.AddCommand(NewLineCommand("get_idn_short", "Short identification", true,
		Pattern().Escape("IDN").EOS().Build(), dev,
		func(_ context.Context, dev *device.Device, _ Args) (string, error) {
			return "DG645", nil
		}))
	assert.Equal(t, "DG645", query(t, d, "IDN"))

	// Replacing a built-in keeps its position and template lookup by name
	d.AddCommand(NewLineCommand("get_ident", "Custom identification", true,
		Pattern().Escape("*IDN?").EOS().Build(), dev,
		func(context.Context, *device.Device, Args) (string, error) {
			return "custom", nil
		}))
	assert.Equal(t, "custom", query(t, d, "*IDN?"))
}

func TestCommandRegistry(t *testing.T) {
	dev := device.NewDevice(config.Default())
	registry := NewCommandRegistry()

	first := NewLineCommand("get_ident", "Identification", true, Pattern().Escape("*IDN?").EOS().Build(), dev, getIdent)
	second := NewLineCommand("clear_queue", "Clear", false, Pattern().Escape("*CLS").EOS().Build(), dev, clearQueue)
	registry.Register(first)
	registry.Register(second)

	_, ok := registry.Get("missing")
	assert.False(t, ok)

	h, ok := registry.Get("get_ident")
	require.True(t, ok)
	assert.Same(t, first, h)
	assert.Equal(t, []string{"get_ident", "clear_queue"}, registry.List())

	replacement := NewLineCommand("get_ident", "Other", true, Pattern().Escape("ID?").EOS().Build(), dev, getIdent)
	registry.Register(replacement)
	assert.Equal(t, []string{"get_ident", "clear_queue"}, registry.List())

	h, _ = registry.Get("get_ident")
	assert.Same(t, replacement, h)

	_, _, matched := registry.Match("*IDN?")
	assert.False(t, matched, "replaced template must no longer match")
	h, _, matched = registry.Match("ID?")
	require.True(t, matched)
	assert.Equal(t, "get_ident", h.GetName())
}
