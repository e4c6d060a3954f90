package malgoserver

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/portbridge/internal/errors"
)

// DeviceInfo describes one soundcard endpoint
type DeviceInfo struct {
	Index   int
	Name    string
	ID      string
	Default bool
}

// backendForPlatform returns the native malgo backend for the current OS
func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, newError(ErrUnsupportedOS, nil, errors.CategoryAudioDevice).
			Context("os", runtime.GOOS).
			Build()
	}
}

func initContext() (*malgo.AllocatedContext, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, newError(ErrContext, err, errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	return ctx, nil
}

// EnumerateDevices lists capture or playback devices
func EnumerateDevices(kind malgo.DeviceType) ([]DeviceInfo, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer func() { _ = ctx.Uninit() }()

	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, newError(ErrContext, err, errors.CategoryAudioDevice).
			Context("operation", "enumerate_devices").
			Build()
	}
	return describeDevices(infos), nil
}

func describeDevices(infos []malgo.DeviceInfo) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		// skip the ALSA null sink
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}
		devices = append(devices, DeviceInfo{
			Index:   i,
			Name:    infos[i].Name(),
			ID:      id,
			Default: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// SelectDevice picks a device by name. Empty, "default" and "sysdefault"
// select the system default, falling back to the first device. Otherwise the
// exact name, then the decoded ID, then a partial name match is tried.
func SelectDevice(devices []DeviceInfo, name string) (DeviceInfo, error) {
	if name == "" || name == "default" || name == "sysdefault" {
		for _, d := range devices {
			if d.Default {
				return d, nil
			}
		}
		if len(devices) > 0 {
			return devices[0], nil
		}
	}

	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	for _, d := range devices {
		if d.ID == name {
			return d, nil
		}
	}
	if name != "" {
		for _, d := range devices {
			if strings.Contains(d.Name, name) {
				return d, nil
			}
		}
	}

	return DeviceInfo{}, newError(ErrNoDevice, nil, errors.CategoryNotFound).
		Context("device_name", name).
		Context("available_devices", len(devices)).
		Build()
}

// findDevice resolves name against the devices of kind and returns the
// matching malgo entry
func findDevice(ctx *malgo.AllocatedContext, kind malgo.DeviceType, name string) (*malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, newError(ErrContext, err, errors.CategoryAudioDevice).
			Context("operation", "enumerate_devices").
			Build()
	}
	selected, err := SelectDevice(describeDevices(infos), name)
	if err != nil {
		return nil, err
	}
	return &infos[selected.Index], nil
}

// hexToASCII decodes malgo's hex encoded device IDs
func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}
