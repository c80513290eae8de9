package homeassistant

import (
	"fmt"
	"strings"
)

// DefaultDiscoveryPrefix is the topic prefix Home Assistant listens on.
const DefaultDiscoveryPrefix = "homeassistant"

// Normalize lower-cases s and removes spaces. Used for topic segments.
func Normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "")
}

// NormalizeID lower-cases s and replaces spaces with underscores. Used for unique IDs.
func NormalizeID(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}

// Topics derives topic names and identifiers for the configured base and model.
type Topics struct {
	DiscoveryPrefix string
	BaseTopic       string
	ModelTopic      string
}

// StateTopic returns {base}/{model}/{key}.
func (t Topics) StateTopic(m Metric) string {
	return fmt.Sprintf("%s/%s/%s", Normalize(t.BaseTopic), Normalize(t.ModelTopic), m.Key())
}

// DiscoveryTopic returns {prefix}/{component}/{model}/{key}/config.
func (t Topics) DiscoveryTopic(m Metric) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", t.prefix(), m.Component, Normalize(t.ModelTopic), m.Key())
}

// UniqueID returns {key}_{model}_{base} with spaces replaced by underscores.
func (t Topics) UniqueID(m Metric) string {
	return fmt.Sprintf("%s_%s_%s", NormalizeID(m.Name), NormalizeID(t.ModelTopic), NormalizeID(t.BaseTopic))
}

// DeviceID returns the identifier used for the generated device document.
func (t Topics) DeviceID() string {
	return fmt.Sprintf("%s_%s", NormalizeID(t.ModelTopic), NormalizeID(t.BaseTopic))
}

// BirthTopic returns the topic Home Assistant announces itself on.
func (t Topics) BirthTopic() string {
	return t.prefix() + "/status"
}

func (t Topics) prefix() string {
	if t.DiscoveryPrefix == "" {
		return DefaultDiscoveryPrefix
	}
	return t.DiscoveryPrefix
}
