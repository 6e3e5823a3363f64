package audio

import "tracktweak/internal/config"

// Device is a host audio device as reported by PortAudio.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	Default           bool // System default input.
}

// MeterChannels returns how many of the device's inputs the meter can use:
// 2 for stereo-capable inputs, 1 for mono, 0 for output-only devices.
func (d Device) MeterChannels() int {
	return min(d.MaxInputChannels, config.MaxChannels)
}

// Kind describes the device direction.
func (d Device) Kind() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	default:
		return "Unavailable"
	}
}

// HostDevices returns all available audio devices. PortAudio must already be
// initialized.
func HostDevices() ([]Device, error) {
	paDeviceInfos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	// A host without any input has no default; that is not an error here.
	defaultName := ""
	if info, err := paLibDefaultInputDeviceFunc(); err == nil && info != nil {
		defaultName = info.Name
	}

	devices := make([]Device, len(paDeviceInfos))
	for i, info := range paDeviceInfos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			Default:           defaultName != "" && info.Name == defaultName,
		}
	}
	return devices, nil
}
