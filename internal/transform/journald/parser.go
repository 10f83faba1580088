package journald

import (
	"encoding/json"
	"fmt"
	"strings"

	"clawav/pkg/models"
)

// MessageField carries the human-readable log text in journal export JSON.
const MessageField = "MESSAGE"

// Parse converts one `journalctl -o json` line into a normalized Event. Scalar journal
// fields are kept as strings; the decoded MESSAGE becomes Raw.
func Parse(data []byte) (models.Event, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Event{}, err
	}

	event := models.Event{
		Source: "journald",
		Kind:   kindFor(getString(raw, "_TRANSPORT")),
		Fields: make(map[string]string, len(raw)),
	}

	for k, v := range raw {
		if k == MessageField {
			continue
		}
		if s, ok := scalarString(v); ok {
			event.Fields[k] = s
		}
	}

	msg, ok := messageText(raw[MessageField])
	if !ok {
		return event, fmt.Errorf("journal entry has no %s field", MessageField)
	}
	event.Raw = msg
	return event, nil
}

func kindFor(transport string) string {
	if transport == "" {
		return "journal"
	}
	return transport
}

// messageText handles both the plain string form and the byte-array form journald uses
// for messages that are not valid UTF-8.
func messageText(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []interface{}:
		buf := make([]byte, 0, len(val))
		for _, b := range val {
			n, ok := b.(float64)
			if !ok || n < 0 || n > 255 {
				return "", false
			}
			buf = append(buf, byte(n))
		}
		return strings.ToValidUTF8(string(buf), "�"), true
	default:
		return "", false
	}
}

func getString(root map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := root[key]; ok {
			if s, ok := scalarString(v); ok {
				return s
			}
		}
	}
	return ""
}

func scalarString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val)), true
		}
		return fmt.Sprintf("%f", val), true
	case bool:
		if val {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}
