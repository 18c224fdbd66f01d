package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/02loveslollipop/sensorlink/services/api/internal/actuator"
	"github.com/02loveslollipop/sensorlink/services/api/internal/sensor"
)

// DeviceProfile describes what the board reports and which actuators it
// drives.
type DeviceProfile struct {
	Channels  []ChannelConfig `yaml:"channels"`
	Actuators []string        `yaml:"actuators"`
}

// ChannelConfig maps a request field to a channel. A zero threshold means
// the channel is stored but never triggers persistence on its own.
type ChannelConfig struct {
	Name      string  `yaml:"name"`
	Field     string  `yaml:"field"`
	Threshold float64 `yaml:"threshold"`
}

// DefaultDeviceProfile matches the stock board firmware.
func DefaultDeviceProfile() DeviceProfile {
	p := DeviceProfile{Actuators: append([]string(nil), actuator.DefaultIDs...)}
	for _, ch := range sensor.DefaultChannels() {
		p.Channels = append(p.Channels, ChannelConfig{
			Name:      string(ch.Name),
			Field:     ch.Field,
			Threshold: ch.Threshold,
		})
	}
	return p
}

// LoadDeviceProfile reads and validates a YAML profile.
func LoadDeviceProfile(path string) (DeviceProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DeviceProfile{}, fmt.Errorf("read device config: %w", err)
	}

	var p DeviceProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return DeviceProfile{}, fmt.Errorf("parse device config: %w", err)
	}

	p.applyDefaults()
	if err := p.validate(); err != nil {
		return DeviceProfile{}, fmt.Errorf("invalid device config: %w", err)
	}
	return p, nil
}

func (p *DeviceProfile) applyDefaults() {
	def := DefaultDeviceProfile()
	if len(p.Channels) == 0 {
		p.Channels = def.Channels
	}
	if len(p.Actuators) == 0 {
		p.Actuators = def.Actuators
	}
	for i := range p.Channels {
		p.Channels[i].Name = strings.TrimSpace(p.Channels[i].Name)
		if p.Channels[i].Field == "" {
			p.Channels[i].Field = p.Channels[i].Name
		}
	}
}

func (p DeviceProfile) validate() error {
	seen := make(map[string]bool, len(p.Channels))
	for i, ch := range p.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channels[%d]: name is required", i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("channels[%d]: duplicate channel %q", i, ch.Name)
		}
		seen[ch.Name] = true
		if ch.Threshold < 0 {
			return fmt.Errorf("channels[%d]: threshold must not be negative", i)
		}
	}
	if _, err := actuator.NewSet(p.Actuators...); err != nil {
		return fmt.Errorf("actuators: %w", err)
	}
	return nil
}

// ChannelSpecs converts the profile for the sensor package.
func (p DeviceProfile) ChannelSpecs() []sensor.ChannelSpec {
	out := make([]sensor.ChannelSpec, 0, len(p.Channels))
	for _, ch := range p.Channels {
		out = append(out, sensor.ChannelSpec{
			Name:      sensor.Channel(ch.Name),
			Field:     ch.Field,
			Threshold: ch.Threshold,
		})
	}
	return out
}

// ActuatorSet returns the validated actuator set.
func (p DeviceProfile) ActuatorSet() (actuator.Set, error) {
	return actuator.NewSet(p.Actuators...)
}
