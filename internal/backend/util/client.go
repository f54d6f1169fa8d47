package util

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	openai "github.com/danilofalcao/ai-relay/internal/api/openai/v1"
	logutils "github.com/danilofalcao/ai-relay/internal/utils/logger"
	"github.com/pkg/errors"
	"golang.org/x/net/http2"
)

const maxLoggedBody = 512

// NewClient returns an HTTP client that negotiates HTTP/2 with TLS upstreams
// and falls back to HTTP/1.1 otherwise. Timeouts are applied per request.
func NewClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if err := http2.ConfigureTransport(transport); err != nil {
		// already configured for h2; the cloned transport is still usable
		transport.ForceAttemptHTTP2 = true
	}
	return &http.Client{
		Transport: transport,
		Timeout:   0,
	}
}

// ChatCall describes one outbound chat completion call
type ChatCall struct {
	Backend string
	URL     string
	ApiKey  string
	Headers map[string]string
	Timeout time.Duration
	Request *openai.ChatCompletionRequest
}

// DoChatCompletion posts call.Request as JSON and decodes the response, which
// must carry at least one choice.
// Every failure is returned as an *UpstreamError.
func DoChatCompletion(ctx context.Context, client *http.Client, call ChatCall) (*openai.ChatCompletionResponse, error) {
	lgr := logutils.FromContext(ctx)

	body, err := json.Marshal(call.Request)
	if err != nil {
		return nil, newUpstreamError(call.Backend, CodeRequestBuild, 0, errors.Wrap(err, "error creating request body"))
	}
	lgr.Debugf(ctx, "Request body: %s", truncateString(string(body), maxLoggedBody))

	if call.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}

	proxyReq, err := http.NewRequestWithContext(ctx, http.MethodPost, call.URL, bytes.NewReader(body))
	if err != nil {
		return nil, newUpstreamError(call.Backend, CodeRequestBuild, 0, errors.Wrap(err, "error creating proxy request"))
	}
	proxyReq.Header.Set("Authorization", "Bearer "+call.ApiKey)
	proxyReq.Header.Set("Content-Type", "application/json")
	proxyReq.Header.Set("Accept", "application/json")
	proxyReq.Header.Set("Accept-Encoding", "gzip, br, deflate")
	for k, v := range call.Headers {
		proxyReq.Header.Set(k, v)
	}

	lgr.Debugf(ctx, "Forwarding to: %s", call.URL)
	resp, err := client.Do(proxyReq)
	if err != nil {
		return nil, newUpstreamError(call.Backend, CodeTransport, 0, errors.Wrap(err, "error forwarding request"))
	}
	defer resp.Body.Close()

	lgr.Debugf(ctx, "%s response status: %d", call.Backend, resp.StatusCode)

	respBody, err := ReadResponse(resp)
	if err != nil {
		return nil, newUpstreamError(call.Backend, CodeReadBody, resp.StatusCode, errors.Wrap(err, "error reading response"))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, newUpstreamError(call.Backend, CodeUpstreamStatus, resp.StatusCode, upstreamMessage(respBody))
	}

	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		err = errors.Wrapf(err, "error parsing response %q", truncateString(string(respBody), maxLoggedBody))
		return nil, newUpstreamError(call.Backend, CodeDecode, resp.StatusCode, err)
	}
	if len(completion.Choices) == 0 {
		return nil, newUpstreamError(call.Backend, CodeNoChoices, resp.StatusCode, errors.New("response has no choices"))
	}

	return &completion, nil
}

func upstreamMessage(body []byte) error {
	var errResp openai.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errors.New(errResp.Error.Message)
	}
	return fmt.Errorf("upstream error body: %s", truncateString(string(body), maxLoggedBody))
}
