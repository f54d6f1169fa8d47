package openrouter

const (
	DefaultEndpoint = "https://openrouter.ai/api/v1"
	APIKeyEnv       = "OPENROUTER_API_KEY"

	// Attribution headers OpenRouter uses for its app rankings
	Referer = "http://localhost:3000"
	Title   = "AI Relay"
)
