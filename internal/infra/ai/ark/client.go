package ark

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/memelens/memelens/internal/domain/analysis"
	"github.com/memelens/memelens/internal/domain/meme"
	"github.com/memelens/memelens/internal/infra/ai/prompt"
)

// ImageFetcher turns a remote URL into an inline data URL for data image
// mode. Nil means records are submitted by reference URL.
type ImageFetcher interface {
	FetchDataURL(ctx context.Context, url string) (string, error)
}

// Client drives one vision chat completion per record against an
// OpenAI-compatible Ark endpoint.
type Client struct {
	api     *openai.Client
	model   string
	prompt  string
	timeout time.Duration
	fetcher ImageFetcher
}

// New builds a client. baseURL points at the Ark API root
// (e.g. https://ark.cn-beijing.volces.com/api/v3).
func New(apiKey, baseURL, model, promptText string, timeout time.Duration, fetcher ImageFetcher) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		model:   model,
		prompt:  promptText,
		timeout: timeout,
		fetcher: fetcher,
	}
}

// Analyze performs a single attempt: build the image reference, send one
// multi-part message, extract the three fields. Retry is the caller's job.
func (c *Client) Analyze(ctx context.Context, record meme.Record) (meme.AnalysisResult, error) {
	imageRef, err := c.imageRef(ctx, record)
	if err != nil {
		return meme.AnalysisResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageRef},
					},
					{
						Type: openai.ChatMessagePartTypeText,
						Text: c.prompt,
					},
				},
			},
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return meme.AnalysisResult{}, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return meme.AnalysisResult{}, analysis.NewError(analysis.KindInvalidResponse, "response has no choices", nil)
	}

	result, err := prompt.ParseAnalysis(resp.Choices[0].Message.Content)
	if err != nil {
		return meme.AnalysisResult{}, analysis.NewError(analysis.KindInvalidResponse, "unparsable model answer", err)
	}
	return result, nil
}

// imageRef resolves the record to a URL or data URL per the configured mode.
func (c *Client) imageRef(ctx context.Context, record meme.Record) (string, error) {
	if !record.HasImage() {
		return "", analysis.NewError(analysis.KindInvalidRequest, "record has no image content", nil)
	}
	if len(record.Data) > 0 {
		mime := http.DetectContentType(record.Data)
		return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(record.Data)), nil
	}
	if c.fetcher == nil {
		return record.URL, nil
	}
	dataURL, err := c.fetcher.FetchDataURL(ctx, record.URL)
	if err != nil {
		return "", analysis.NewError(analysis.KindTransport, "image download failed", err)
	}
	return dataURL, nil
}

// mapError translates go-openai failures into the analysis taxonomy.
func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fromStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fromStatus(reqErr.HTTPStatusCode, err)
	}
	// Timeouts, connection resets, DNS failures.
	return analysis.NewError(analysis.KindTransport, "request failed", err)
}

func fromStatus(status int, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return analysis.NewError(analysis.KindAuth, "credential rejected", err)
	case status == http.StatusTooManyRequests:
		return analysis.NewError(analysis.KindRateLimited, "rate limited", err)
	case status >= 500:
		return analysis.NewError(analysis.KindTransport, fmt.Sprintf("server error %d", status), err)
	case status >= 400:
		return analysis.NewError(analysis.KindInvalidRequest, fmt.Sprintf("request rejected %d", status), err)
	}
	return analysis.NewError(analysis.KindTransport, "request failed", err)
}
