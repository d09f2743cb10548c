package device

import "fmt"

// Delay is the setting of one channel: a magnitude in seconds measured from
// the reference channel
type Delay struct {
	Reference Channel `msgpack:"ref" json:"reference"`
	Magnitude float64 `msgpack:"mag" json:"magnitude"`
}

// DelayTable holds the delay of every channel. T1 is derived on read as the
// longest delay of A..H.
//
// DelayTable is not safe for concurrent use; Device serializes access.
type DelayTable struct {
	delays [NumChannels]Delay
	strict bool
}

// NewDelayTable returns a table with every channel at 0 s from T0. In strict
// mode Set also rejects assignments that close a multi-hop reference loop.
func NewDelayTable(strict bool) *DelayTable {
	return &DelayTable{strict: strict}
}

// Get returns the delay of a channel after recomputing T1
func (t *DelayTable) Get(which Channel) Delay {
	t.updateT1()
	return t.delays[which]
}

// Set assigns a delay. Invalid links leave the table untouched and return an
// ErrIllegalLink error.
func (t *DelayTable) Set(which, reference Channel, magnitude float64) error {
	if err := t.CheckLink(which, reference); err != nil {
		return err
	}

	t.delays[which] = Delay{Reference: reference, Magnitude: Quantize(magnitude)}
	t.updateT1()
	return nil
}

// CheckLink validates a reference assignment without applying it. Only
// A..H may be set, never from themselves or from T1.
func (t *DelayTable) CheckLink(which, reference Channel) error {
	if !which.Valid() || !reference.Valid() {
		return newError(ErrIllegalValue, fmt.Sprintf("channel out of range: %d,%d", which, reference))
	}
	if which == reference || !which.Settable() || reference == T1 {
		return newError(ErrIllegalLink, fmt.Sprintf("%s cannot reference %s", which, reference))
	}
	if t.strict && t.closesLoop(which, reference) {
		return newError(ErrIllegalLink, fmt.Sprintf("%s referencing %s forms a loop", which, reference))
	}
	return nil
}

// All returns a copy of every channel delay, T1 up to date
func (t *DelayTable) All() [NumChannels]Delay {
	t.updateT1()
	return t.delays
}

// load replaces the table contents, used when restoring snapshots
func (t *DelayTable) load(delays [NumChannels]Delay) {
	t.delays = delays
	t.delays[T0] = Delay{Reference: T0}
	t.updateT1()
}

func (t *DelayTable) updateT1() {
	var longest float64
	for _, d := range t.delays[A:] {
		if d.Magnitude > longest {
			longest = d.Magnitude
		}
	}
	t.delays[T1] = Delay{Reference: T0, Magnitude: longest}
}

// closesLoop follows the chain from reference and reports whether it comes
// back to which
func (t *DelayTable) closesLoop(which, reference Channel) bool {
	cur := reference
	for hops := 0; hops < NumChannels; hops++ {
		if cur == which {
			return true
		}
		if cur == T0 {
			return false
		}
		cur = t.delays[cur].Reference
	}
	return true
}
