package device

import (
	"fmt"
	"strings"
)

// Channel identifies one of the ten delay channels of the generator
type Channel int

// Channels in device index order. T0 is the time base, T1 the end of the
// longest delay; A..H are the user settable outputs.
const (
	T0 Channel = iota
	T1
	A
	B
	C
	D
	E
	F
	G
	H
)

// NumChannels is the number of delay channels on the device
const NumChannels = 10

var channelNames = [NumChannels]string{"T0", "T1", "A", "B", "C", "D", "E", "F", "G", "H"}

// ParseChannel converts a raw protocol index into a Channel
func ParseChannel(index int) (Channel, error) {
	if index < 0 || index >= NumChannels {
		return T0, newError(ErrIllegalValue, fmt.Sprintf("channel index %d out of range", index))
	}
	return Channel(index), nil
}

// ChannelByName looks up a channel by its front panel name (case-insensitive)
func ChannelByName(name string) (Channel, bool) {
	for i, n := range channelNames {
		if strings.EqualFold(n, name) {
			return Channel(i), true
		}
	}
	return T0, false
}

// Valid reports whether c is one of the ten device channels
func (c Channel) Valid() bool {
	return c >= T0 && c < NumChannels
}

// Settable reports whether the delay of c can be assigned
func (c Channel) Settable() bool {
	return c >= A && c <= H
}

func (c Channel) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Channel(%d)", int(c))
	}
	return channelNames[c]
}
