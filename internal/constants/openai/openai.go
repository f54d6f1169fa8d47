package openai

const (
	DefaultEndpoint = "https://api.openai.com/v1"
	APIKeyEnv       = "OPENAI_API_KEY"
)
