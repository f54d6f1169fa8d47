package openrouter

import (
	"context"
	"net/http"
	"strings"
	"time"

	openai "github.com/danilofalcao/ai-relay/internal/api/openai/v1"
	"github.com/danilofalcao/ai-relay/internal/backend"
	"github.com/danilofalcao/ai-relay/internal/backend/util"
	openrouterconstants "github.com/danilofalcao/ai-relay/internal/constants/openrouter"
	logutils "github.com/danilofalcao/ai-relay/internal/utils/logger"
)

var _ backend.Backend = &openrouterBackend{}

type openrouterBackend struct {
	endpoint string
	apikey   string
	timeout  time.Duration
	client   *http.Client
}

type Options struct {
	Endpoint string
	ApiKey   string
	Timeout  time.Duration
	// Client overrides the default HTTP/2-capable client
	Client *http.Client
}

func NewOpenrouterBackend(opts Options) backend.Backend {
	if opts.Endpoint == "" {
		opts.Endpoint = openrouterconstants.DefaultEndpoint
	}
	if opts.Client == nil {
		opts.Client = util.NewClient()
	}
	return &openrouterBackend{
		endpoint: strings.TrimSuffix(opts.Endpoint, "/"),
		apikey:   opts.ApiKey,
		timeout:  opts.Timeout,
		client:   opts.Client,
	}
}

// Name returns the name of the backend
func (b *openrouterBackend) Name() string {
	return "openrouter"
}

// ChatCompletion forwards req to OpenRouter. req.Model must already be an
// OpenRouter model id.
func (b *openrouterBackend) ChatCompletion(ctx context.Context, req *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	lgr, ctx := logutils.FromContext(ctx).Clone(ctx, b.Name())
	lgr.Debugf(ctx, "Requested model: %s", req.Model)

	return util.DoChatCompletion(ctx, b.client, util.ChatCall{
		Backend: b.Name(),
		URL:     b.endpoint + "/chat/completions",
		ApiKey:  b.apikey,
		Headers: map[string]string{
			"HTTP-Referer": openrouterconstants.Referer,
			"X-Title":      openrouterconstants.Title,
		},
		Timeout: b.timeout,
		Request: req,
	})
}
