package nutrition

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/bytedance/sonic"

	"foodcal-server-go/internal/platform/errors"
)

// Extraction is the tagged result of scanning model text for a JSON object.
// Found implies Object is a compacted, syntactically valid JSON object and Err is nil.
type Extraction struct {
	Found  bool
	Object json.RawMessage
	Err    error
}

// Extract takes the greedy span from the first '{' to the last '}' of text
// and parses it strictly. Any valid JSON object is accepted as-is.
func Extract(text string) Extraction {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return Extraction{Err: errors.New(errors.KindExtract, "nutrition.extract", "no JSON object in model output")}
	}
	span := text[start : end+1]

	var obj map[string]any
	if err := sonic.ConfigStd.UnmarshalFromString(span, &obj); err != nil {
		return Extraction{Err: errors.Wrap(errors.KindExtract, "nutrition.extract", "invalid JSON object in model output", err)}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(span)); err != nil {
		return Extraction{Err: errors.Wrap(errors.KindExtract, "nutrition.extract", "invalid JSON object in model output", err)}
	}

	return Extraction{Found: true, Object: buf.Bytes()}
}
