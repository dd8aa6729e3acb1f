package crawler

import (
	"fmt"
	"strings"
)

// DeviceName identifies a built-in device profile.
type DeviceName string

// Built-in device names.
const (
	DeviceDesktop DeviceName = "desktop"
	DeviceMobile  DeviceName = "mobile"
)

const (
	desktopUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/126.0.0.0 Safari/537.36"
	mobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
)

// DeviceProfile is a named viewport and user-agent configuration.
type DeviceProfile struct {
	Name       DeviceName
	Width      int64
	Height     int64
	Scale      float64
	Mobile     bool
	FullHeight bool
	UserAgent  string
}

// Viewport returns the profile's initial window size.
func (p DeviceProfile) Viewport() Viewport {
	return Viewport{Width: p.Width, Height: p.Height}
}

var profiles = map[DeviceName]DeviceProfile{
	DeviceDesktop: {
		Name:       DeviceDesktop,
		Width:      1920,
		Height:     1080,
		Scale:      1,
		FullHeight: true,
		UserAgent:  desktopUserAgent,
	},
	DeviceMobile: {
		Name:       DeviceMobile,
		Width:      375,
		Height:     812,
		Scale:      1,
		Mobile:     true,
		FullHeight: true,
		UserAgent:  mobileUserAgent,
	},
}

// Profile looks up a built-in device profile by name.
func Profile(name DeviceName) (DeviceProfile, error) {
	p, ok := profiles[DeviceName(strings.ToLower(strings.TrimSpace(string(name))))]
	if !ok {
		return DeviceProfile{}, fmt.Errorf("unknown device profile %q", name)
	}
	return p, nil
}

// Devices returns the built-in device names in a stable order.
func Devices() []DeviceName {
	return []DeviceName{DeviceDesktop, DeviceMobile}
}

// ParseDevices expands a list of names, where "all" selects every built-in profile.
func ParseDevices(names []string) ([]DeviceName, error) {
	var out []DeviceName
	seen := make(map[DeviceName]struct{})
	for _, raw := range names {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		candidates := []DeviceName{DeviceName(raw)}
		if raw == "all" {
			candidates = Devices()
		}
		for _, name := range candidates {
			if _, err := Profile(name); err != nil {
				return nil, err
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one device is required")
	}
	return out, nil
}
