package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/resident-x/go-aims/internal/domain"
)

// DiscoveryPayload builds the retained discovery document for a metric.
//
// The layout is fixed: fields appear in the order below, separated by ", ",
// with optional fields omitted when the metric does not define them. device is
// a pre-serialized JSON object and is inserted verbatim; an empty device is
// written as {} so the document stays valid JSON.
func DiscoveryPayload(t Topics, expireAfter int, device string, m Metric) []byte {
	if device == "" {
		device = "{}"
	}

	var b bytes.Buffer
	b.WriteByte('{')
	writeString(&b, "unique_id", t.UniqueID(m))
	writeString(&b, "name", m.Name)
	if m.DeviceClass != "" {
		writeString(&b, "device_class", m.DeviceClass)
	}
	if m.Unit != "" {
		writeString(&b, "unit_of_measurement", m.Unit)
	}
	if m.StateClass != "" {
		writeString(&b, "state_class", m.StateClass)
	}
	writeRaw(&b, "expire_after", strconv.Itoa(expireAfter))
	writeString(&b, "state_topic", t.StateTopic(m))
	writeRaw(&b, "device", device)
	b.WriteByte('}')
	return b.Bytes()
}

// PublishDiscovery publishes the retained discovery document for a metric.
func PublishDiscovery(ctx context.Context, bus domain.MessagePublisher, t Topics, expireAfter int, device string, m Metric) error {
	topic := t.DiscoveryTopic(m)
	if err := bus.Publish(ctx, topic, DiscoveryPayload(t, expireAfter, device, m), true); err != nil {
		return fmt.Errorf("%w: discovery %s: %w", domain.ErrPublish, topic, err)
	}
	return nil
}

func writeString(b *bytes.Buffer, key, value string) {
	writeRaw(b, key, quote(value))
}

func writeRaw(b *bytes.Buffer, key, raw string) {
	if b.Len() > 1 {
		b.WriteString(", ")
	}
	b.WriteString(quote(key))
	b.WriteString(": ")
	b.WriteString(raw)
}

// quote JSON-encodes s without HTML escaping, so "°C" and "%" stay literal.
func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
