package nutrition

import "encoding/json"

// Result is the nutrition record shape returned to callers.
type Result struct {
	Food     string  `json:"food"`
	Calories float64 `json:"calories"`
	Carbs    float64 `json:"carbs"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
	Sugar    float64 `json:"sugar"`
}

// UnknownFood is the food name used by the fallback record.
const UnknownFood = "Unknown"

// Fields lists the record keys in response order.
var Fields = []string{"food", "calories", "carbs", "protein", "fat", "fiber", "sugar"}

const fallbackJSON = `{"food":"Unknown","calories":0,"carbs":0,"protein":0,"fat":0,"fiber":0,"sugar":0}`

// Fallback returns the record used whenever any stage fails.
func Fallback() Result {
	return Result{Food: UnknownFood}
}

// FallbackPayload returns a fresh copy of the serialized fallback record.
func FallbackPayload() json.RawMessage {
	return json.RawMessage(fallbackJSON)
}
