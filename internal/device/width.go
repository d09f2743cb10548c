package device

import "fmt"

// MaxReferenceDepth bounds the reference chain walked by Width. A valid
// setting of eight outputs can never be deeper than this.
const MaxReferenceDepth = 8

// Width returns the absolute delay of a channel from T0: its own delay plus
// the delays of every channel up its reference chain. A chain that does not
// reach T0 within MaxReferenceDepth hops is reported as a link error.
func (t *DelayTable) Width(which Channel) (float64, error) {
	t.updateT1()
	var width float64
	cur := which
	for depth := 0; ; depth++ {
		if depth > MaxReferenceDepth {
			return 0, newError(ErrIllegalLink, fmt.Sprintf("reference loop from %s", which))
		}
		d := t.delays[cur]
		width += d.Magnitude
		if cur == T0 || d.Reference == T0 {
			return Quantize(width), nil
		}
		cur = d.Reference
	}
}

// ChannelWidth is the absolute delay of one channel or the reason it has none
type ChannelWidth struct {
	Channel Channel `json:"-"`
	Name    string  `json:"channel"`
	Width   float64 `json:"width"`
	Err     string  `json:"error,omitempty"`
}

// Widths computes the absolute delay of every channel
func (d *Device) Widths() []ChannelWidth {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]ChannelWidth, 0, NumChannels)
	for ch := T0; ch < NumChannels; ch++ {
		w, err := d.delays.Width(ch)
		cw := ChannelWidth{Channel: ch, Name: ch.String(), Width: w}
		if err != nil {
			cw.Err = err.Error()
		}
		out = append(out, cw)
	}
	return out
}

// PairWidth returns the pulse width of an output pair such as AB: the
// absolute difference between the widths of its two channels
func (d *Device) PairWidth(lead, trail Channel) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, err := d.delays.Width(lead)
	if err != nil {
		return 0, err
	}
	b, err := d.delays.Width(trail)
	if err != nil {
		return 0, err
	}
	w := b - a
	if w < 0 {
		w = -w
	}
	return Quantize(w), nil
}
