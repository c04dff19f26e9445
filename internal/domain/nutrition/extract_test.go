package nutrition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodcal-server-go/internal/platform/errors"
)

const appleJSON = `{"food":"apple","calories":95,"carbs":25,"protein":0.5,"fat":0.3,"fiber":4.4,"sugar":19}`

func TestExtract_Found(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "object surrounded by prose",
			text: "Here is the info:\n" + appleJSON + "\nEnjoy!",
			want: appleJSON,
		},
		{
			name: "markdown code fence with indentation",
			text: "```json\n{\n    \"food\": \"banana\",\n    \"calories\": 105\n}\n```",
			want: `{"food":"banana","calories":105}`,
		},
		{
			name: "nested object kept",
			text: `result: {"food":"bowl","detail":{"rice":1}} done`,
			want: `{"food":"bowl","detail":{"rice":1}}`,
		},
		{
			name: "non-schema object accepted as-is",
			text: `{"dish":"pho","kcal":"lots"}`,
			want: `{"dish":"pho","kcal":"lots"}`,
		},
		{
			name: "number literals preserved",
			text: `{"food":"x","fat":0.50,"sugar":1e2}`,
			want: `{"food":"x","fat":0.50,"sugar":1e2}`,
		},
		{
			name: "object inside array",
			text: `[{"food":"kiwi"}]`,
			want: `{"food":"kiwi"}`,
		},
		{
			name: "empty object",
			text: "{}",
			want: "{}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text)
			require.True(t, got.Found, "err: %v", got.Err)
			assert.NoError(t, got.Err)
			assert.Equal(t, tt.want, string(got.Object))
		})
	}
}

func TestExtract_NotFound(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no braces", "I cannot identify this image."},
		{"empty text", ""},
		{"only opening brace", "{ oops"},
		{"closing before opening", "} and then {"},
		{"trailing comma", `{"food":"apple","calories":95,}`},
		{"single quotes", `{'food':'apple'}`},
		{"two objects make an invalid greedy span", `{"a":1} and {"b":2}`},
		{"unterminated string", `{"food":"apple}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text)
			assert.False(t, got.Found)
			assert.Nil(t, got.Object)
			require.Error(t, got.Err)
			assert.True(t, errors.IsKind(got.Err, errors.KindExtract))
		})
	}
}

func TestPadMissing(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		changed bool
	}{
		{
			name: "complete record untouched",
			in:   appleJSON,
			want: appleJSON,
		},
		{
			name:    "missing numbers appended",
			in:      `{"food":"tea","calories":2}`,
			want:    `{"food":"tea","calories":2,"carbs":0,"protein":0,"fat":0,"fiber":0,"sugar":0}`,
			changed: true,
		},
		{
			name:    "extra keys kept",
			in:      `{"note":"hot"}`,
			want:    `{"note":"hot","food":"Unknown","calories":0,"carbs":0,"protein":0,"fat":0,"fiber":0,"sugar":0}`,
			changed: true,
		},
		{
			name:    "empty object",
			in:      `{}`,
			want:    `{"food":"Unknown","calories":0,"carbs":0,"protein":0,"fat":0,"fiber":0,"sugar":0}`,
			changed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := PadMissing([]byte(tt.in))
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.want, string(got))
			assert.True(t, Extract(string(got)).Found)
		})
	}
}

func TestFallbackPayload(t *testing.T) {
	p := FallbackPayload()
	assert.JSONEq(t, `{"food":"Unknown","calories":0,"carbs":0,"protein":0,"fat":0,"fiber":0,"sugar":0}`, string(p))

	// 调用方修改返回值不影响后续调用
	p[2] = 'X'
	assert.Equal(t, fallbackJSON, string(FallbackPayload()))

	assert.Equal(t, Result{Food: "Unknown"}, Fallback())
}
