package v1

// Request is the body a client posts to /api/ai
type Request struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

// Response carries the completion text
type Response struct {
	Response string `json:"response"`
}

// ErrorResponse is returned with a 500 when the handler itself fails
type ErrorResponse struct {
	Error string `json:"error"`
}

// ModelsResponse lists the model names routed to the secondary provider
type ModelsResponse struct {
	Models []string `json:"models"`
}
