package nutrition

import (
	"bytes"
	"encoding/json"

	"github.com/bytedance/sonic"
)

var fieldDefaults = map[string]string{
	"food":     `"Unknown"`,
	"calories": "0",
	"carbs":    "0",
	"protein":  "0",
	"fat":      "0",
	"fiber":    "0",
	"sugar":    "0",
}

// PadMissing appends fallback defaults for any of the seven record keys
// absent from obj. Present keys, extra keys and their order are kept.
// obj must be a compacted JSON object as produced by Extract.
func PadMissing(obj json.RawMessage) (json.RawMessage, bool) {
	var present map[string]json.RawMessage
	if err := sonic.Unmarshal(obj, &present); err != nil {
		return obj, false
	}

	var missing []string
	for _, key := range Fields {
		if _, ok := present[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return obj, false
	}

	trimmed := bytes.TrimSpace(obj)
	var buf bytes.Buffer
	buf.Write(trimmed[:len(trimmed)-1])
	needComma := len(present) > 0
	for _, key := range missing {
		if needComma {
			buf.WriteByte(',')
		}
		needComma = true
		buf.WriteString(`"` + key + `":` + fieldDefaults[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), true
}
