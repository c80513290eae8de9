package homeassistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// DeviceInfo is the Home Assistant device block shared by every entity of the bridge.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// NewDeviceInfo builds the device block for the configured topics.
func NewDeviceInfo(t Topics, name, manufacturer, model, swVersion string) DeviceInfo {
	if name == "" {
		name = t.ModelTopic
	}
	return DeviceInfo{
		Identifiers:  []string{t.DeviceID()},
		Name:         name,
		Manufacturer: manufacturer,
		Model:        model,
		SWVersion:    swVersion,
	}
}

// JSON serializes the device block in compact form.
func (d DeviceInfo) JSON() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal device info: %w", err)
	}
	return string(data), nil
}

// ResolveDeviceJSON returns the configured device document when set, otherwise
// the generated one. A configured document is used verbatim; one that is not a
// JSON object is only reported, since Home Assistant will reject it anyway.
func ResolveDeviceJSON(configured string, generated DeviceInfo) (string, error) {
	if strings.TrimSpace(configured) == "" {
		return generated.JSON()
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(configured), &obj); err != nil {
		log.Warn().
			Str("component", "discovery").
			Err(err).
			Str("device_json", configured).
			Msg("Configured device_json is not a JSON object, publishing it unchanged")
	}
	return configured, nil
}
