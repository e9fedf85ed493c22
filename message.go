package main

const (
	MsgRunning = "Defect classification API is running."

	MsgNoFile        = "No file uploaded"
	MsgFileTooLarge  = "Uploaded file is too large"
	MsgReadFailed    = "Failed to read uploaded file"
	StatusHealthy    = "healthy"
	StatusUnhealthy  = "unhealthy"
	requestIDHeader  = "X-Request-ID"
	uploadFieldName  = "file"
	maxRequestIDSize = 128
)

var endpointDescriptions = map[string]string{
	"/health":  "Check if model is loaded",
	"/predict": "POST image for prediction",
	"/metrics": "Prometheus metrics",
}
