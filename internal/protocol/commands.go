package protocol

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dg645-sim/internal/device"
)

// RegisterCoreCommands registers the commands that read or change device
// state. Queries are registered before the set form of the same mnemonic.
func RegisterCoreCommands(registry *CommandRegistry, dev *device.Device) {
	add := func(name, description string, query bool, t *Template, fn CommandFunc) {
		registry.Register(NewLineCommand(name, description, query, t, dev, fn))
	}

	add("get_ident", "Identification string", true,
		Pattern().Escape("*IDN?").EOS().Build(), getIdent)

	add("get_delay", "Read channel delay as reference,seconds", true,
		Pattern().Escape("DLAY?").Spaces().Int().EOS().Build(), getDelay)
	add("set_delay", "Set channel delay relative to a reference channel", false,
		Pattern().Escape("DLAY").Spaces().Int().Optional(",").Spaces().Int().Optional(",").Spaces().Any().EOS().Build(), setDelay)

	add("get_trigger_source", "Read trigger source", true,
		Pattern().Escape("TSRC?").EOS().Build(), getTriggerSource)
	add("set_trigger_source", "Set trigger source (0-6)", false,
		Pattern().Escape("TSRC").Spaces().Int().EOS().Build(), setTriggerSource)

	add("get_level_amplitude", "Read output level amplitude", true,
		Pattern().Escape("LAMP?").Spaces().Int().EOS().Build(), getLevel((*device.Device).LevelAmplitude))
	add("set_level_amplitude", "Set output level amplitude", false,
		Pattern().Escape("LAMP").Spaces().Int().Optional(",").Spaces().Any().EOS().Build(), setLevel((*device.Device).SetLevelAmplitude))

	add("get_level_offset", "Read output level offset", true,
		Pattern().Escape("LOFF?").Spaces().Int().EOS().Build(), getLevel((*device.Device).LevelOffset))
	add("set_level_offset", "Set output level offset", false,
		Pattern().Escape("LOFF").Spaces().Int().Optional(",").Spaces().Any().EOS().Build(), setLevel((*device.Device).SetLevelOffset))

	add("get_level_polarity", "Read output level polarity", true,
		Pattern().Escape("LPOL?").Spaces().Int().EOS().Build(), getLevel((*device.Device).LevelPolarity))
	add("set_level_polarity", "Set output level polarity", false,
		Pattern().Escape("LPOL").Spaces().Int().Optional(",").Spaces().Any().EOS().Build(), setLevel((*device.Device).SetLevelPolarity))

	add("get_last_error", "Pop the oldest queued error code", true,
		Pattern().Escape("LERR?").EOS().Build(), getLastError)
	add("clear_queue", "Clear the error queue", false,
		Pattern().Escape("*CLS").EOS().Build(), clearQueue)

	add("get_trigger_level", "Read trigger threshold", true,
		Pattern().Escape("TLVL?").EOS().Build(), getTriggerLevel)
	add("set_trigger_level", "Set trigger threshold", false,
		Pattern().Escape("TLVL").Spaces().Float().EOS().Build(), setTriggerLevel)

	add("local_mode", "Go to local mode", false,
		Pattern().Escape("LCAL").EOS().Build(), noop)
	add("remote_mode", "Go to remote mode", false,
		Pattern().Escape("REMT").EOS().Build(), noop)
	add("save_config", "Save settings to a slot", false,
		Pattern().Escape("*SAV").Spaces().Int().EOS().Build(), noop)
	add("load_config", "Recall settings from a slot", false,
		Pattern().Escape("*RCL").Spaces().Int().EOS().Build(), noop)
}

// RegisterCompatCommands registers queries that the IOC's asyn driver sends
// while booting. They always answer "0".
func RegisterCompatCommands(registry *CommandRegistry, dev *device.Device) {
	indexed := map[string]string{
		"PRES?": "get_prescale_factor",
		"PHAS?": "get_prescale_phase_factor",
		"IFCF?": "get_interface_config",
		"SSDL?": "get_step_size_delay",
	}
	plain := map[string]string{
		"TRAT?": "get_trigger_rate",
		"ADVT?": "get_advanced_triggering_mode",
		"INHB?": "get_inhibit",
		"EMAC?": "get_ethernet_mac",
		"BURC?": "get_burst_count",
		"BURD?": "get_burst_delay",
		"BURM?": "get_burst_mode",
		"BURP?": "get_burst_period",
		"BURT?": "get_burst_t0",
		"HOLD?": "get_holdoff",
	}

	for _, mnemonic := range sortedKeys(indexed) {
		t := Pattern().Escape(mnemonic).Spaces().Int().EOS().Build()
		registry.Register(NewLineCommand(indexed[mnemonic], "Boot compatibility query", true, t, dev, zero))
	}
	for _, mnemonic := range sortedKeys(plain) {
		t := Pattern().Escape(mnemonic).EOS().Build()
		registry.Register(NewLineCommand(plain[mnemonic], "Boot compatibility query", true, t, dev, zero))
	}
}

func getIdent(_ context.Context, dev *device.Device, _ Args) (string, error) {
	return dev.Identification(), nil
}

func getDelay(_ context.Context, dev *device.Device, args Args) (string, error) {
	which, err := channelArg(dev, args, 0)
	if err != nil {
		return formatDelay(device.Delay{}), err
	}
	return formatDelay(dev.Delay(which)), nil
}

func setDelay(_ context.Context, dev *device.Device, args Args) (string, error) {
	which, err := channelArg(dev, args, 0)
	if err != nil {
		return "", err
	}
	reference, err := channelArg(dev, args, 1)
	if err != nil {
		return "", err
	}
	// Link rules are checked before the amount is looked at
	if err := dev.CheckLink(which, reference); err != nil {
		return "", err
	}
	amount, err := numberArg(dev, args, 2)
	if err != nil {
		return "", err
	}
	if amount < 0 {
		dev.ReportError(device.CodeIllegalValue)
		return "", &device.Error{Code: device.CodeIllegalValue, Reason: fmt.Sprintf("negative delay %g", amount)}
	}
	return "", dev.SetDelay(which, reference, amount)
}

func getTriggerSource(_ context.Context, dev *device.Device, _ Args) (string, error) {
	return strconv.Itoa(dev.TriggerSource()), nil
}

func setTriggerSource(_ context.Context, dev *device.Device, args Args) (string, error) {
	return "", dev.SetTriggerSource(args.Int(0))
}

func getLevel(get func(*device.Device, device.Channel) float64) CommandFunc {
	return func(_ context.Context, dev *device.Device, args Args) (string, error) {
		which, err := channelArg(dev, args, 0)
		if err != nil {
			return formatNumber(0), err
		}
		return formatNumber(get(dev, which)), nil
	}
}

func setLevel(set func(*device.Device, device.Channel, float64)) CommandFunc {
	return func(_ context.Context, dev *device.Device, args Args) (string, error) {
		which, err := channelArg(dev, args, 0)
		if err != nil {
			return "", err
		}
		v, err := numberArg(dev, args, 1)
		if err != nil {
			return "", err
		}
		set(dev, which, v)
		return "", nil
	}
}

func getLastError(_ context.Context, dev *device.Device, _ Args) (string, error) {
	return strconv.Itoa(int(dev.LastError())), nil
}

func clearQueue(_ context.Context, dev *device.Device, _ Args) (string, error) {
	dev.ClearErrors()
	return "", nil
}

func getTriggerLevel(_ context.Context, dev *device.Device, _ Args) (string, error) {
	return formatNumber(dev.TriggerLevel()), nil
}

func setTriggerLevel(_ context.Context, dev *device.Device, args Args) (string, error) {
	dev.SetTriggerLevel(args.Float(0))
	return "", nil
}

func noop(context.Context, *device.Device, Args) (string, error) {
	return "", nil
}

func zero(context.Context, *device.Device, Args) (string, error) {
	return "0", nil
}

// channelArg converts field i to a channel, queueing an illegal value error
// when it is out of range
func channelArg(dev *device.Device, args Args, i int) (device.Channel, error) {
	ch, err := device.ParseChannel(args.Int(i))
	if err != nil {
		dev.ReportError(device.CodeIllegalValue)
		return device.T0, err
	}
	return ch, nil
}

// numberArg converts free text field i to a finite float, queueing an
// illegal value error when it does not convert
func numberArg(dev *device.Device, args Args, i int) (float64, error) {
	raw := strings.TrimSpace(args.Text(i))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		dev.ReportError(device.CodeIllegalValue)
		return 0, &device.Error{Code: device.CodeIllegalValue, Reason: fmt.Sprintf("not a number: %q", raw)}
	}
	return v, nil
}

func formatDelay(d device.Delay) string {
	return fmt.Sprintf("%d,%.12f", int(d.Reference), d.Magnitude)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
