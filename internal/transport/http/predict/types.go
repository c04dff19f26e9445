package predict

// PredictRequest 图片识别请求体，image 为 base64 编码的图片（可带 data URL 前缀）
type PredictRequest struct {
	Image string `json:"image" example:"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="`
}

// EstimateRequest 文本估算请求体
type EstimateRequest struct {
	Text string `json:"text" example:"large chicken salad"`
}

// NutritionRecord 接口返回的营养记录（模型输出原样返回时可能缺少或多出字段）
type NutritionRecord struct {
	Food     string  `json:"food" example:"apple"`
	Calories float64 `json:"calories" example:"95"`
	Carbs    float64 `json:"carbs" example:"25"`
	Protein  float64 `json:"protein" example:"0.5"`
	Fat      float64 `json:"fat" example:"0.3"`
	Fiber    float64 `json:"fiber" example:"4.4"`
	Sugar    float64 `json:"sugar" example:"19"`
}
