// Package relay routes a single chat message to one of two upstream providers
// and returns the text of the first completion.
package relay

import (
	"context"
	"maps"
	"slices"

	openai "github.com/danilofalcao/ai-relay/internal/api/openai/v1"
	"github.com/danilofalcao/ai-relay/internal/backend"
	"github.com/danilofalcao/ai-relay/internal/backend/util"
	logutils "github.com/danilofalcao/ai-relay/internal/utils/logger"
	"github.com/pkg/errors"
)

const (
	SystemPrompt     = "You are a helpful coding assistant. Explain code, debug, and provide suggestions."
	FallbackResponse = "Sorry, I couldn't process your request."
)

// ModelMapping translates a logical model name to a secondary provider model id
type ModelMapping map[string]string

// DefaultModelMapping lists the models served by the secondary provider
var DefaultModelMapping = ModelMapping{
	"deepseek-chat":       "deepseek/deepseek-r1:free",
	"google/gemini-flash": "google/gemini-2.0-flash-thinking-exp:free",
}

type Options struct {
	// Primary serves every model not present in Models
	Primary backend.Backend
	// Secondary serves the mapped models
	Secondary backend.Backend
	// Models defaults to DefaultModelMapping when nil
	Models ModelMapping
}

type Relay struct {
	primary   backend.Backend
	secondary backend.Backend
	models    ModelMapping
}

// Route is the provider choice for one model name
type Route struct {
	Backend       backend.Backend
	UpstreamModel string
	Mapped        bool
}

func New(opts Options) (*Relay, error) {
	if opts.Primary == nil {
		return nil, errors.New("primary backend is required")
	}
	if opts.Secondary == nil {
		return nil, errors.New("secondary backend is required")
	}
	models := opts.Models
	if models == nil {
		models = DefaultModelMapping
	}
	return &Relay{
		primary:   opts.Primary,
		secondary: opts.Secondary,
		models:    maps.Clone(models),
	}, nil
}

// Route picks the backend for model. Names missing from the mapping are
// assumed to already be valid primary provider ids.
func (r *Relay) Route(model string) Route {
	if upstream, ok := r.models[model]; ok {
		return Route{Backend: r.secondary, UpstreamModel: upstream, Mapped: true}
	}
	return Route{Backend: r.primary, UpstreamModel: model}
}

// Models returns the mapped model names in sorted order
func (r *Relay) Models() []string {
	return slices.Sorted(maps.Keys(r.models))
}

// Handle sends message to the provider selected by model and returns the
// first completion's text. It never fails: upstream errors are logged with
// their code and replaced by FallbackResponse.
func (r *Relay) Handle(ctx context.Context, message, model string) string {
	lgr := logutils.FromContext(ctx)
	route := r.Route(model)

	lgr.Debugf(ctx, "Routing model %q to %s as %q", model, route.Backend.Name(), route.UpstreamModel)

	resp, err := route.Backend.ChatCompletion(ctx, NewChatRequest(route.UpstreamModel, message))
	if err != nil {
		err = errors.Wrap(err, "error communicating with AI")
		lgr.Errorf(ctx, "code=%s backend=%s model=%q: %s", util.CodeOf(err), route.Backend.Name(), model, err.Error())
		return FallbackResponse
	}
	return resp.Choices[0].Message.Content
}

// NewChatRequest builds the two-turn conversation sent upstream
func NewChatRequest(model, message string) *openai.ChatCompletionRequest {
	return &openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.Message{
			{Role: openai.RoleSystem, Content: SystemPrompt},
			{Role: openai.RoleUser, Content: message},
		},
	}
}
