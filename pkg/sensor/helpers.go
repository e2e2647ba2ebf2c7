package sensor

import (
	"github.com/ericogr/thermistor-to-mqtt/pkg/config"
	"github.com/ericogr/thermistor-to-mqtt/pkg/fault"
)

// enabledChannels returns the distinct channels of all enabled probes, in
// configuration order.
func enabledChannels(cfg config.Config) []int {
	seen := make(map[int]bool)
	channels := make([]int, 0, len(cfg.Probes))
	for _, p := range cfg.EnabledProbes() {
		if seen[p.Channel] {
			continue
		}
		seen[p.Channel] = true
		channels = append(channels, p.Channel)
	}
	return channels
}

type channelSet map[int]bool

func newChannelSet(channels []int) channelSet {
	set := make(channelSet, len(channels))
	for _, c := range channels {
		set[c] = true
	}
	return set
}

func (c channelSet) check(channel int) error {
	if !c[channel] {
		return fault.Config("channel", "channel %d not configured", channel)
	}
	return nil
}
