package device

import (
	"fmt"
	"sync"

	"github.com/dg645-sim/internal/config"
)

// Trigger source selector range (internal .. line)
const (
	MinTriggerSource = 0
	MaxTriggerSource = 6
)

// Device represents the thread-safe state of the simulated delay generator.
// The delay table and the error queue share one lock so T1 is always derived
// from a consistent view of A..H.
type Device struct {
	mu             sync.RWMutex
	identification string
	delays         *DelayTable
	errors         *ErrorQueue
	triggerSource  int
	triggerLevel   float64
	levelAmplitude [NumChannels]float64
	levelOffset    [NumChannels]float64
	levelPolarity  [NumChannels]float64

	defaultIdentification string
	strict                bool
	queueCapacity         int
}

// State is a copy of everything the device holds, used for snapshots and the
// control API
type State struct {
	Identification string               `msgpack:"idn" json:"identification"`
	Delays         [NumChannels]Delay   `msgpack:"delays" json:"delays"`
	TriggerSource  int                  `msgpack:"tsrc" json:"trigger_source"`
	TriggerLevel   float64              `msgpack:"tlvl" json:"trigger_level"`
	LevelAmplitude [NumChannels]float64 `msgpack:"lamp" json:"level_amplitude"`
	LevelOffset    [NumChannels]float64 `msgpack:"loff" json:"level_offset"`
	LevelPolarity  [NumChannels]float64 `msgpack:"lpol" json:"level_polarity"`
	Errors         []ErrorCode          `msgpack:"errors" json:"errors"`
}

// NewDevice creates a device in its power-on state
func NewDevice(cfg *config.Config) *Device {
	d := &Device{
		defaultIdentification: cfg.Device.Identification,
		strict:                cfg.Device.StrictReferences,
		queueCapacity:         cfg.Device.ErrorQueueCapacity,
	}
	d.reset()
	return d
}

// Reset reinitializes the device to its power-on state
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *Device) reset() {
	d.identification = d.defaultIdentification
	d.delays = NewDelayTable(d.strict)
	d.errors = NewErrorQueue(d.queueCapacity)
	d.triggerSource = 0
	d.triggerLevel = 0
	d.levelAmplitude = [NumChannels]float64{}
	d.levelOffset = [NumChannels]float64{}
	d.levelPolarity = [NumChannels]float64{}
}

// Identification returns the *IDN? string
func (d *Device) Identification() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.identification
}

// SetIdentification changes the *IDN? string until the next reset
func (d *Device) SetIdentification(idn string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identification = idn
}

// Delay returns the delay of a channel
func (d *Device) Delay(which Channel) Delay {
	// Get recomputes T1, so this takes the write lock
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delays.Get(which)
}

// Delays returns the delay of every channel
func (d *Device) Delays() [NumChannels]Delay {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delays.All()
}

// SetDelay assigns a channel delay. A rejected assignment leaves the table
// unchanged, queues the error code and returns the error.
func (d *Device) SetDelay(which, reference Channel, magnitude float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record(d.delays.Set(which, reference, magnitude))
}

// CheckLink validates a reference assignment before its magnitude is
// known. A rejected link is queued like a failed SetDelay.
func (d *Device) CheckLink(which, reference Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record(d.delays.CheckLink(which, reference))
}

// TriggerSource returns the trigger source selector
func (d *Device) TriggerSource() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.triggerSource
}

// SetTriggerSource stores the selector even when it is out of range; an out
// of range value also queues an illegal value error.
func (d *Device) SetTriggerSource(src int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.triggerSource = src
	if src < MinTriggerSource || src > MaxTriggerSource {
		return d.record(newError(ErrIllegalValue, fmt.Sprintf("trigger source %d out of range", src)))
	}
	return nil
}

// TriggerLevel returns the trigger threshold in volts
func (d *Device) TriggerLevel() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.triggerLevel
}

// SetTriggerLevel sets the trigger threshold in volts
func (d *Device) SetTriggerLevel(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.triggerLevel = v
}

// LevelAmplitude returns the output amplitude of a channel
func (d *Device) LevelAmplitude(which Channel) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.levelAmplitude[which]
}

// SetLevelAmplitude sets the output amplitude of a channel
func (d *Device) SetLevelAmplitude(which Channel, v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.levelAmplitude[which] = v
}

// LevelOffset returns the output offset of a channel
func (d *Device) LevelOffset(which Channel) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.levelOffset[which]
}

// SetLevelOffset sets the output offset of a channel
func (d *Device) SetLevelOffset(which Channel, v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.levelOffset[which] = v
}

// LevelPolarity returns the output polarity of a channel
func (d *Device) LevelPolarity(which Channel) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.levelPolarity[which]
}

// SetLevelPolarity sets the output polarity of a channel
func (d *Device) SetLevelPolarity(which Channel, v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.levelPolarity[which] = v
}

// ReportError queues an error code raised outside the device, e.g. by the
// protocol layer when a field does not convert
func (d *Device) ReportError(code ErrorCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors.Push(code)
}

// LastError pops the oldest queued error code
func (d *Device) LastError() ErrorCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errors.Pop()
}

// ClearErrors empties the error queue
func (d *Device) ClearErrors() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors.Clear()
}

// Errors returns the queued codes, oldest first, without consuming them
func (d *Device) Errors() []ErrorCode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.errors.Entries()
}

// Snapshot returns a copy of the complete device state
func (d *Device) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Identification: d.identification,
		Delays:         d.delays.All(),
		TriggerSource:  d.triggerSource,
		TriggerLevel:   d.triggerLevel,
		LevelAmplitude: d.levelAmplitude,
		LevelOffset:    d.levelOffset,
		LevelPolarity:  d.levelPolarity,
		Errors:         d.errors.Entries(),
	}
}

// Restore replaces the device state with s. Channels outside the device
// range are reset to T0 references.
func (d *Device) Restore(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delays := s.Delays
	for i := range delays {
		if !delays[i].Reference.Valid() {
			delays[i].Reference = T0
		}
	}
	d.delays.load(delays)

	d.identification = s.Identification
	if d.identification == "" {
		d.identification = d.defaultIdentification
	}
	d.triggerSource = s.TriggerSource
	d.triggerLevel = s.TriggerLevel
	d.levelAmplitude = s.LevelAmplitude
	d.levelOffset = s.LevelOffset
	d.levelPolarity = s.LevelPolarity
	d.errors.Clear()
	for _, code := range s.Errors {
		d.errors.Push(code)
	}
}

// record queues the code of a device error and passes it through
func (d *Device) record(err error) error {
	if derr, ok := err.(*Error); ok {
		d.errors.Push(derr.Code)
	}
	return err
}
