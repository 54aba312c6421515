package api

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// WebhookAck is the body the payment provider expects on accepted deliveries.
type WebhookAck struct {
	Msg string `json:"msg" example:"success"`
}
