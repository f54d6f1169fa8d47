package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	openaiapi "github.com/danilofalcao/ai-relay/internal/api/openai/v1"
	"github.com/danilofalcao/ai-relay/internal/backend"
	"github.com/danilofalcao/ai-relay/internal/backend/util"
	openaiconstants "github.com/danilofalcao/ai-relay/internal/constants/openai"
	logutils "github.com/danilofalcao/ai-relay/internal/utils/logger"
)

var _ backend.Backend = &openaiBackend{}

type openaiBackend struct {
	endpoint string
	apikey   string
	timeout  time.Duration
	client   *http.Client
}

type Options struct {
	Endpoint string
	ApiKey   string
	Timeout  time.Duration
	Client   *http.Client
}

func NewOpenaiBackend(opts Options) backend.Backend {
	if opts.Endpoint == "" {
		opts.Endpoint = openaiconstants.DefaultEndpoint
	}
	if opts.Client == nil {
		opts.Client = util.NewClient()
	}
	return &openaiBackend{
		endpoint: strings.TrimSuffix(opts.Endpoint, "/"),
		apikey:   opts.ApiKey,
		timeout:  opts.Timeout,
		client:   opts.Client,
	}
}

// Name returns the name of the backend
func (b *openaiBackend) Name() string {
	return "openai"
}

// ChatCompletion forwards req to OpenAI with the model name untouched
func (b *openaiBackend) ChatCompletion(ctx context.Context, req *openaiapi.ChatCompletionRequest) (*openaiapi.ChatCompletionResponse, error) {
	lgr, ctx := logutils.FromContext(ctx).Clone(ctx, b.Name())
	lgr.Debugf(ctx, "Requested model: %s", req.Model)

	return util.DoChatCompletion(ctx, b.client, util.ChatCall{
		Backend: b.Name(),
		URL:     b.endpoint + "/chat/completions",
		ApiKey:  b.apikey,
		Timeout: b.timeout,
		Request: req,
	})
}
