package models

import "time"

// Prediction is the outcome of classifying a single uploaded image.
type Prediction struct {
	PredictedClass string  `json:"predicted_class"`
	Confidence     float64 `json:"confidence"`
	RawScore       float64 `json:"raw_score"`
}

type ProcessingTimings struct {
	RequestID   string
	ModelLoad   time.Duration
	ImageDecode time.Duration
	Resize      time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Total       time.Duration
}

type InfoResponse struct {
	Message   string            `json:"message"`
	Endpoints map[string]string `json:"endpoints"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded,omitempty"`
	Error       string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
